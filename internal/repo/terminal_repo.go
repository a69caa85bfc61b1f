// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file provides repository functions for terminal
// identities: the single local identity row on a terminal, and the
// registry of known terminals on the relay.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/pos-sync/internal/domain"
)

// GetIdentity returns the local terminal identity, or ErrNotFound on a
// fresh database.
func GetIdentity(ctx context.Context, db *gorm.DB) (*domain.TerminalIdentity, error) {
	var id domain.TerminalIdentity
	err := db.WithContext(ctx).Order("id ASC").First(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateIdentity inserts the local identity row.
func CreateIdentity(ctx context.Context, db *gorm.DB, id *domain.TerminalIdentity) error {
	now := time.Now().UTC()
	id.CreatedAt = now
	id.UpdatedAt = now
	return db.WithContext(ctx).Create(id).Error
}

// SetTerminalID stores the relay-assigned terminal id on the identity row.
func SetTerminalID(ctx context.Context, db *gorm.DB, identityID, terminalID int64) error {
	res := db.WithContext(ctx).
		Model(&domain.TerminalIdentity{}).
		Where("id = ?", identityID).
		Updates(map[string]any{
			"terminal_id": terminalID,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSync stamps last_sync_at on the identity row.
func TouchLastSync(ctx context.Context, db *gorm.DB, identityID int64, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.TerminalIdentity{}).
		Where("id = ?", identityID).
		Updates(map[string]any{
			"last_sync_at": at,
			"updated_at":   at,
		}).Error
}

// UpsertRelayTerminal registers a terminal on the relay, keyed by
// (store_id, terminal_code). Re-registering refreshes device name, address
// and last_seen_at and returns the existing id.
func UpsertRelayTerminal(ctx context.Context, db *gorm.DB, req domain.RegisterRequest, now time.Time) (*domain.RelayTerminal, error) {
	row := domain.RelayTerminal{
		StoreID:      req.StoreID,
		TerminalCode: req.TerminalCode,
		DeviceName:   req.DeviceName,
		IPAddress:    req.IPAddress,
		LastSeenAt:   now,
		CreatedAt:    now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "terminal_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_name", "ip_address", "last_seen_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	// Re-read: on conflict some drivers do not report the existing id.
	var out domain.RelayTerminal
	err = db.WithContext(ctx).
		Where("store_id = ? AND terminal_code = ?", req.StoreID, req.TerminalCode).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TouchRelayTerminal stamps last_seen_at for a terminal that pushed or
// pulled. Unknown ids are ignored.
func TouchRelayTerminal(ctx context.Context, db *gorm.DB, terminalID int64, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.RelayTerminal{}).
		Where("id = ?", terminalID).
		Update("last_seen_at", at).Error
}
