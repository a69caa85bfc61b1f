// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file provides repository helpers for the PushReceipt
// model used to answer retried push batches without appending them twice.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (terminal_id, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetPushReceipt returns a non-expired receipt or ErrNotFound.
func GetPushReceipt(ctx context.Context, db *gorm.DB, terminalID int64, key string, now time.Time) (*domain.PushReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.PushReceipt
	err := db.WithContext(ctx).
		Where("terminal_id = ? AND key = ? AND expires_at > ?", terminalID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreatePushReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreatePushReceipt(ctx context.Context, db *gorm.DB, terminalID int64, key string, received int, latest int64, ttl time.Duration) (*domain.PushReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.PushReceipt{
		ID:              uuid.NewString(),
		TerminalID:      terminalID,
		Key:             key,
		ChangesReceived: received,
		LatestVersion:   latest,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredReceipts deletes receipts whose expires_at is at or before now
// and returns how many rows were removed.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.PushReceipt{})
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
