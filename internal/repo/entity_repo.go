// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file holds the generic entity writers used both by
// local catalog mutations and by replaying remote changes.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertEntity inserts model or, when its primary key exists, overwrites all
// columns. model must be a pointer to a GORM model with its ID set.
func UpsertEntity(ctx context.Context, db *gorm.DB, model any) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// DeleteEntityByID hard-deletes the row with the given id. Deleting a
// missing row is not an error.
func DeleteEntityByID(ctx context.Context, db *gorm.DB, model any, id int64) error {
	return db.WithContext(ctx).Delete(model, id).Error
}
