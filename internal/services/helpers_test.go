package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/repo"
)

// newFileDB opens a temp-file SQLite database. File databases (rather than
// shared-cache memory) keep nested savepoints and concurrent cycles free of
// table-lock errors.
func newFileDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

func newRelayService(t *testing.T) *RelayService {
	t.Helper()
	db := newFileDB(t, "relay.db")
	if err := repo.AutoMigrateRelay(db); err != nil {
		t.Fatalf("migrate relay: %v", err)
	}
	return NewRelayService(db, 0, time.Hour)
}

func newTerminalDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db := newFileDB(t, name+".db")
	if err := repo.AutoMigrateTerminal(db); err != nil {
		t.Fatalf("migrate terminal: %v", err)
	}
	return db
}

// loopback is an in-process RelayTransport backed by a RelayService. Hooks
// let tests inject failures around the real relay calls.
type loopback struct {
	relay *RelayService

	mu         sync.Mutex
	pushErr    error // returned instead of calling the relay
	lostAck    bool  // relay accepts the push, caller sees a network error
	pullErr    error
	pushes     int
	pulls      []domain.PullQuery
	keys       []string
	pushGate   chan struct{} // when set, Push waits on it
	mutatePull func(*domain.PullResult)
}

func (l *loopback) Register(ctx context.Context, req domain.RegisterRequest) (int64, error) {
	t, err := l.relay.Register(ctx, req)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (l *loopback) Push(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	l.mu.Lock()
	gate := l.pushGate
	pushErr := l.pushErr
	lost := l.lostAck
	l.pushes++
	l.keys = append(l.keys, req.IdempotencyKey)
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if pushErr != nil {
		return nil, pushErr
	}
	res, err := l.relay.Push(ctx, req)
	if err != nil {
		return nil, err
	}
	if lost {
		return nil, errors.Join(ErrNetwork, errors.New("connection reset after write"))
	}
	return res, nil
}

func (l *loopback) Pull(ctx context.Context, q domain.PullQuery) (*domain.PullResult, error) {
	l.mu.Lock()
	l.pulls = append(l.pulls, q)
	pullErr := l.pullErr
	mutate := l.mutatePull
	l.mu.Unlock()
	if pullErr != nil {
		return nil, pullErr
	}
	res, err := l.relay.Pull(ctx, q)
	if err == nil && mutate != nil {
		mutate(res)
	}
	return res, err
}

func (l *loopback) Health(context.Context) error { return nil }

func (l *loopback) set(fn func(l *loopback)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l)
}

// newTerminal builds an initialized SyncClient with its own database.
func newTerminal(t *testing.T, relay RelayTransport, code string, opts SyncOptions) *SyncClient {
	t.Helper()
	opts.TerminalCode = code
	c := NewSyncClient(newTerminalDB(t, code), relay, opts)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init %s: %v", code, err)
	}
	return c
}

func (c *SyncClient) catalog() *Catalog { return &Catalog{DB: c.DB, Outbox: c.Outbox} }

func mustCycle(t *testing.T, c *SyncClient) CycleReport {
	t.Helper()
	rep, err := c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return rep
}

func product(t *testing.T, db *gorm.DB, id int64) *domain.Product {
	t.Helper()
	var p domain.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("load product %d: %v", id, err)
	}
	return &p
}

func cursorVersion(t *testing.T, c *SyncClient) int64 {
	t.Helper()
	id := c.Identity()
	cur, err := repo.GetOrCreateCursor(context.Background(), c.DB, id.TerminalID)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	return cur.LastSyncVersion
}

// seedChanges appends n operator changes (no terminal) straight into the relay.
func seedChanges(t *testing.T, s *RelayService, n int) {
	t.Helper()
	ctx := context.Background()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		first, err := repo.ReserveVersions(ctx, tx, n)
		if err != nil {
			return err
		}
		rows := make([]domain.ChangeLogEntry, n)
		for i := range rows {
			rows[i] = domain.ChangeLogEntry{
				StoreID:    1,
				EntityType: domain.EntityCategory,
				EntityID:   int64(100 + i),
				Action:     domain.ActionCreate,
				Payload:    `{"name":"seed"}`,
				Version:    first + int64(i),
			}
		}
		return repo.AppendChanges(ctx, tx, rows)
	})
	if err != nil {
		t.Fatalf("seed changes: %v", err)
	}
}
