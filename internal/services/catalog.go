// Package services – Catalog
//
// Catalog is the terminal's local write path for synced entities. Every save
// or delete commits the entity row and its outbox entry in one transaction.
package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Catalog writes products, categories and users on a terminal.
type Catalog struct {
	DB     *gorm.DB
	Outbox *Outbox
}

// Save inserts or overwrites e and records a create or update mutation.
// e must carry a positive id.
func (c *Catalog) Save(ctx context.Context, e domain.Syncable) error {
	ctx, span := observability.Tracer("catalog").Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("entity.type", e.SyncEntityType()),
			attribute.Int64("entity.id", e.SyncID()),
		),
	)
	defer span.End()

	if e.SyncID() <= 0 {
		return fmt.Errorf("%w: %s id must be positive", ErrInvalidRequest, e.SyncEntityType())
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(e).Where("id = ?", e.SyncID()).Count(&n).Error; err != nil {
			return err
		}
		action := domain.ActionCreate
		if n > 0 {
			action = domain.ActionUpdate
		}
		if err := repo.UpsertEntity(ctx, tx, e); err != nil {
			return err
		}
		return c.Outbox.Record(ctx, tx, e.SyncEntityType(), e.SyncID(), action, e)
	})
}

// Delete removes e and records a delete mutation. Deleting a missing row still
// records the mutation so other terminals converge.
func (c *Catalog) Delete(ctx context.Context, e domain.Syncable) error {
	ctx, span := observability.Tracer("catalog").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("entity.type", e.SyncEntityType()),
			attribute.Int64("entity.id", e.SyncID()),
		),
	)
	defer span.End()

	if e.SyncID() <= 0 {
		return fmt.Errorf("%w: %s id must be positive", ErrInvalidRequest, e.SyncEntityType())
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteEntityByID(ctx, tx, e, e.SyncID()); err != nil {
			return err
		}
		return c.Outbox.Record(ctx, tx, e.SyncEntityType(), e.SyncID(), domain.ActionDelete,
			map[string]int64{"id": e.SyncID()})
	})
}
