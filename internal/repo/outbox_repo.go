// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file provides repository functions for the terminal
// outbox.
//
// The outbox is append-only: rows are inserted by CreateOutboxEntry and only
// ever updated by the sync client (MarkOutboxSynced, RecordOutboxFailure).
// Pending rows are read in creation order, oldest first.
//
// Functions:
//
//   - CreateOutboxEntry(ctx, db, entry) -> error
//   - ListPendingOutbox(ctx, db, limit) -> []domain.OutboxEntry, error
//   - MarkOutboxSynced(ctx, db, ids, at) -> error
//   - RecordOutboxFailure(ctx, db, ids, at, reason) -> error
//   - CountPendingOutbox(ctx, db) -> int64, error
//   - CountStuckOutbox(ctx, db, minAttempts) -> int64, error
package repo

import (
	"context"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
)

// maxErrorLen caps the stored last_error text in bytes. Cuts land on a
// rune boundary.
const maxErrorLen = 512

// CreateOutboxEntry inserts a pending outbox row. Synced and SyncAttempts are
// forced to their initial values; CreatedAt defaults to now (UTC).
func CreateOutboxEntry(ctx context.Context, db *gorm.DB, e *domain.OutboxEntry) error {
	e.ID = 0
	e.Synced = false
	e.SyncAttempts = 0
	e.LastAttemptAt = nil
	e.SyncedAt = nil
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(e).Error
}

// ListPendingOutbox returns up to limit unsynced entries ordered by
// (created_at ASC, id ASC).
func ListPendingOutbox(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxEntry, error) {
	var out []domain.OutboxEntry
	q := db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkOutboxSynced flags every entry in ids as synced in a single statement,
// so a batch is either fully marked or not at all.
func MarkOutboxSynced(ctx context.Context, db *gorm.DB, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.OutboxEntry{}).
		Where("id IN ? AND synced = ?", ids, false).
		Updates(map[string]any{
			"synced":     true,
			"synced_at":  at,
			"last_error": "",
		}).Error
}

// RecordOutboxFailure increments sync_attempts and stamps last_attempt_at
// and last_error on every entry of a failed push batch. Entries stay pending.
func RecordOutboxFailure(ctx context.Context, db *gorm.DB, ids []int64, at time.Time, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(reason) > maxErrorLen {
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	return db.WithContext(ctx).
		Model(&domain.OutboxEntry{}).
		Where("id IN ? AND synced = ?", ids, false).
		Updates(map[string]any{
			"sync_attempts":   gorm.Expr("sync_attempts + 1"),
			"last_attempt_at": at,
			"last_error":      reason,
		}).Error
}

// CountPendingOutbox returns the number of unsynced entries.
func CountPendingOutbox(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.OutboxEntry{}).
		Where("synced = ?", false).
		Count(&n).Error
	return n, err
}

// CountStuckOutbox returns the number of unsynced entries whose attempts
// reached minAttempts.
func CountStuckOutbox(ctx context.Context, db *gorm.DB, minAttempts int) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.OutboxEntry{}).
		Where("synced = ? AND sync_attempts >= ?", false, minAttempts).
		Count(&n).Error
	return n, err
}
