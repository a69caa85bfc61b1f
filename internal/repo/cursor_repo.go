// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file provides repository functions for the
// per-terminal sync cursor.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - GetOrCreateCursor(ctx, db, terminalID) -> *domain.SyncCursor, error
//     Returns the cursor, creating it at version 0 on first use.
//
//   - AdvanceCursor(ctx, db, terminalID, version, at) -> error
//     Moves last_sync_version forward to version. Never moves it backwards.
//
//   - TouchCursorPush(ctx, db, terminalID, at) -> error
//     Stamps last_push_at.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// GetOrCreateCursor loads the cursor for terminalID, inserting a zeroed row
// if none exists.
func GetOrCreateCursor(ctx context.Context, db *gorm.DB, terminalID int64) (*domain.SyncCursor, error) {
	cur := domain.SyncCursor{TerminalID: terminalID}
	err := db.WithContext(ctx).
		Where(domain.SyncCursor{TerminalID: terminalID}).
		FirstOrCreate(&cur).Error
	if err != nil {
		return nil, err
	}
	return &cur, nil
}

// AdvanceCursor sets last_sync_version to max(current, version) and stamps
// last_pull_at. The cursor row must exist.
func AdvanceCursor(ctx context.Context, db *gorm.DB, terminalID, version int64, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.SyncCursor{}).
		Where("terminal_id = ?", terminalID).
		Updates(map[string]any{
			"last_sync_version": gorm.Expr("CASE WHEN last_sync_version < ? THEN ? ELSE last_sync_version END", version, version),
			"last_pull_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchCursorPush stamps last_push_at on the cursor row.
func TouchCursorPush(ctx context.Context, db *gorm.DB, terminalID int64, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.SyncCursor{}).
		Where("terminal_id = ?", terminalID).
		Update("last_push_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
