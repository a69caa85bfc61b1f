// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file provides repository functions for the relay's
// append-only change log and its global version counter.
//
// Version assignment happens in two steps inside one transaction:
// ReserveVersions bumps the counter row by n and returns the first reserved
// version, then AppendChanges inserts the entries carrying those versions.
// The counter UPDATE is issued before any read so the row lock (Postgres) or
// write lock (SQLite) is taken up front.
//
// Functions:
//
//   - ReserveVersions(ctx, tx, n) -> first int64, error
//   - AppendChanges(ctx, tx, entries) -> error
//   - LatestVersion(ctx, db) -> int64, error
//   - ListChangesSince(ctx, db, ChangeQuery) -> []domain.ChangeLogEntry, error
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
)

// appendBatchSize bounds the number of rows per INSERT statement.
const appendBatchSize = 200

// ErrCounterMissing is returned when the version counter row was never seeded.
var ErrCounterMissing = errors.New("version counter not initialized")

// ChangeQuery selects change-log rows for a pull.
//
// Rows with Since < version <= Until are returned ascending by version.
// ExcludeTerminal drops rows produced by that terminal (rows without a
// terminal are always kept). StoreID > 0 restricts to one store. Limit > 0
// caps the result.
type ChangeQuery struct {
	Since           int64
	Until           int64
	ExcludeTerminal int64
	StoreID         int64
	Limit           int
}

// ReserveVersions atomically increments the global counter by n and returns
// the first version of the reserved range [first, first+n-1]. Must run
// inside a transaction together with AppendChanges.
func ReserveVersions(ctx context.Context, tx *gorm.DB, n int) (int64, error) {
	if n <= 0 {
		return 0, errors.New("reserve versions: n must be positive")
	}
	res := tx.WithContext(ctx).
		Model(&domain.VersionCounter{}).
		Where("name = ?", domain.GlobalVersionCounter).
		Update("value", gorm.Expr("value + ?", n))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrCounterMissing
	}

	var values []int64
	err := tx.WithContext(ctx).
		Model(&domain.VersionCounter{}).
		Where("name = ?", domain.GlobalVersionCounter).
		Pluck("value", &values).Error
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrCounterMissing
	}
	return values[0] - int64(n) + 1, nil
}

// AppendChanges inserts change-log rows. Versions must already be assigned.
func AppendChanges(ctx context.Context, tx *gorm.DB, entries []domain.ChangeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(entries, appendBatchSize).Error
}

// LatestVersion returns the highest assigned version, or 0 on an empty log.
func LatestVersion(ctx context.Context, db *gorm.DB) (int64, error) {
	var values []int64
	err := db.WithContext(ctx).
		Model(&domain.VersionCounter{}).
		Where("name = ?", domain.GlobalVersionCounter).
		Pluck("value", &values).Error
	if err != nil || len(values) == 0 {
		return 0, err
	}
	return values[0], nil
}

// ListChangesSince returns the rows selected by q ordered by version ASC.
func ListChangesSince(ctx context.Context, db *gorm.DB, q ChangeQuery) ([]domain.ChangeLogEntry, error) {
	out := make([]domain.ChangeLogEntry, 0)
	tx := db.WithContext(ctx).
		Where("version > ? AND version <= ?", q.Since, q.Until)
	if q.ExcludeTerminal > 0 {
		tx = tx.Where("(terminal_id IS NULL OR terminal_id <> ?)", q.ExcludeTerminal)
	}
	if q.StoreID > 0 {
		tx = tx.Where("store_id = ?", q.StoreID)
	}
	tx = tx.Order("version ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
