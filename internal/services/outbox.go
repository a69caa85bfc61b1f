// Package services – Outbox
//
// Outbox is the terminal-side append point for local mutations. Business code
// calls Record inside its own transaction so the entity write and the outbox
// row commit or roll back together. Enqueue is the best-effort variant for
// callers without a transaction: it never fails the caller and only logs.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/repo"
)

// Outbox records local mutations for later push.
type Outbox struct {
	DB      *gorm.DB
	StoreID int64

	terminalID atomic.Int64
}

// NewOutbox returns an Outbox stamping entries with storeID.
func NewOutbox(db *gorm.DB, storeID int64) *Outbox {
	return &Outbox{DB: db, StoreID: storeID}
}

// SetTerminalID sets the relay-assigned id stamped on new entries.
func (o *Outbox) SetTerminalID(id int64) { o.terminalID.Store(id) }

// TerminalID returns the id stamped on new entries (0 before registration).
func (o *Outbox) TerminalID() int64 { return o.terminalID.Load() }

// Record appends one mutation using tx. payload may be a string, []byte,
// json.RawMessage or any value that marshals to JSON.
func (o *Outbox) Record(ctx context.Context, tx *gorm.DB, entityType string, entityID int64, action domain.Action, payload any) error {
	entityType = NormalizeEntityType(entityType)
	if entityType == "" || entityID <= 0 || !action.Valid() {
		return fmt.Errorf("%w: outbox entry %q/%d/%q", ErrInvalidRequest, entityType, entityID, action)
	}
	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrInvalidRequest, err)
	}
	e := &domain.OutboxEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Payload:    data,
		StoreID:    o.StoreID,
		TerminalID: o.TerminalID(),
	}
	return repo.CreateOutboxEntry(ctx, tx, e)
}

// Enqueue appends one mutation in its own statement. Failures are logged and
// swallowed so the caller's business operation is never failed by sync.
func (o *Outbox) Enqueue(ctx context.Context, entityType string, entityID int64, action domain.Action, payload any) {
	if err := o.Record(ctx, o.DB, entityType, entityID, action, payload); err != nil {
		log.Error().
			Err(err).
			Str("component", "outbox").
			Str("entity_type", entityType).
			Int64("entity_id", entityID).
			Str("action", string(action)).
			Msg("outbox enqueue failed")
	}
}

// NormalizeEntityType trims and lower-cases an entity type name.
func NormalizeEntityType(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

func encodePayload(v any) (string, error) {
	switch p := v.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
