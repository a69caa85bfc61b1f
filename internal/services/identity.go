package services

import (
	"context"
	"errors"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/repo"
)

// test seams
var (
	hostnameFn       = os.Hostname
	interfaceAddrsFn = net.InterfaceAddrs
)

var codeUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// EnsureIdentity returns the local terminal identity, creating it on first
// run. An existing row is reused as-is, including its store id. code
// overrides the host-derived terminal code when non-empty.
func EnsureIdentity(ctx context.Context, db *gorm.DB, storeID int64, deviceName, code string) (*domain.TerminalIdentity, error) {
	id, err := repo.GetIdentity(ctx, db)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	host, _ := hostnameFn()
	if strings.TrimSpace(code) == "" {
		code = host
	}
	id = &domain.TerminalIdentity{
		TerminalCode: terminalCode(code),
		StoreID:      storeID,
		DeviceName:   strings.TrimSpace(deviceName),
		IPAddress:    localIP(),
	}
	if id.DeviceName == "" {
		id.DeviceName = host
	}
	if err := repo.CreateIdentity(ctx, db, id); err != nil {
		return nil, err
	}
	return id, nil
}

// terminalCode derives a stable code from the host name. Hosts without a
// usable name get a random code, persisted with the identity.
func terminalCode(host string) string {
	code := codeUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(host)), "-")
	code = strings.Trim(code, "-")
	if code == "" {
		return "terminal-" + uuid.NewString()[:8]
	}
	return code
}

// localIP returns the first non-loopback IPv4 address, or "".
func localIP() string {
	addrs, err := interfaceAddrsFn()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if v4 := ipn.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
