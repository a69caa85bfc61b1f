// Package services – Apply
//
// Remote changes pulled from the relay are replayed through a Registry that
// maps entity types to apply functions. Create and update are idempotent
// upserts by primary key; delete removes by key and ignores missing rows, so
// replaying the same change any number of times converges to the same state.
//
// ApplyBatch runs every change in its own savepoint inside the caller's
// transaction. A failing change is rolled back alone; the policy decides
// whether the rest of the batch continues (skip) or stops (halt).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/repo"
)

// ApplyFunc replays one change for a single entity type.
type ApplyFunc func(ctx context.Context, tx *gorm.DB, action domain.Action, entityID int64, payload string) error

// ApplyPolicy controls what happens to the rest of a pulled batch when one
// change fails to apply.
type ApplyPolicy string

const (
	// ApplySkip logs the failure, skips the change and keeps going. The cursor
	// still advances past it.
	ApplySkip ApplyPolicy = "skip"
	// ApplyHalt stops at the failing change and leaves the cursor just before
	// it so the next cycle retries it.
	ApplyHalt ApplyPolicy = "halt"
)

// ParseApplyPolicy maps a config value to a policy, defaulting to ApplySkip.
func ParseApplyPolicy(s string) ApplyPolicy {
	if ApplyPolicy(NormalizeEntityType(s)) == ApplyHalt {
		return ApplyHalt
	}
	return ApplySkip
}

// Registry maps entity types to apply functions. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]ApplyFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]ApplyFunc)}
}

// DefaultRegistry returns a registry with product, category and user appliers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.EntityProduct, EntityApplier[domain.Product]())
	r.Register(domain.EntityCategory, EntityApplier[domain.Category]())
	r.Register(domain.EntityUser, EntityApplier[domain.User]())
	return r
}

// Register binds fn to entityType, replacing any previous binding.
func (r *Registry) Register(entityType string, fn ApplyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[NormalizeEntityType(entityType)] = fn
}

// Lookup returns the apply function for entityType.
func (r *Registry) Lookup(entityType string) (ApplyFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[NormalizeEntityType(entityType)]
	return fn, ok
}

// Apply replays a single change. It returns ErrUnknownEntity when no function
// is registered for entityType.
func (r *Registry) Apply(ctx context.Context, tx *gorm.DB, entityType string, action domain.Action, entityID int64, payload string) error {
	fn, ok := r.Lookup(entityType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	return fn(ctx, tx, action, entityID, payload)
}

// EntityApplier builds an ApplyFunc for a GORM model implementing
// domain.Syncable. The entity id from the change always wins over any id in
// the payload.
func EntityApplier[T any, PT interface {
	*T
	domain.Syncable
}]() ApplyFunc {
	return func(ctx context.Context, tx *gorm.DB, action domain.Action, entityID int64, payload string) error {
		switch action {
		case domain.ActionCreate, domain.ActionUpdate:
			if payload == "" {
				return errors.New("empty payload for " + string(action))
			}
			var v T
			pt := PT(&v)
			if err := json.Unmarshal([]byte(payload), pt); err != nil {
				return fmt.Errorf("decode %s payload: %w", pt.SyncEntityType(), err)
			}
			pt.SetSyncID(entityID)
			return repo.UpsertEntity(ctx, tx, pt)
		case domain.ActionDelete:
			return repo.DeleteEntityByID(ctx, tx, PT(new(T)), entityID)
		default:
			return fmt.Errorf("unsupported action %q", action)
		}
	}
}

// BatchResult summarizes one ApplyBatch call.
type BatchResult struct {
	Applied int
	Skipped int // unknown entity types
	Failed  int
	// HaltedAt is the version of the change that stopped the batch under
	// ApplyHalt, 0 otherwise.
	HaltedAt int64
}

// ApplyBatch replays changes in order inside tx. Each change runs in a nested
// transaction (savepoint). Under ApplyHalt the first failure stops the batch
// and is returned wrapped in ErrApply; already applied changes stay in tx.
func ApplyBatch(ctx context.Context, tx *gorm.DB, reg *Registry, changes []domain.ChangeLogEntry, policy ApplyPolicy) (BatchResult, error) {
	var res BatchResult
	lg := log.With().Str("component", "apply").Logger()

	for i := range changes {
		ch := &changes[i]
		fn, ok := reg.Lookup(ch.EntityType)
		if !ok {
			res.Skipped++
			lg.Warn().
				Str("entity_type", ch.EntityType).
				Int64("version", ch.Version).
				Msg("no apply function registered; skipping change")
			continue
		}

		err := tx.Transaction(func(stx *gorm.DB) error {
			return fn(ctx, stx, ch.Action, ch.EntityID, ch.Payload)
		})
		if err == nil {
			res.Applied++
			continue
		}

		res.Failed++
		lg.Warn().
			Err(err).
			Str("entity_type", ch.EntityType).
			Int64("entity_id", ch.EntityID).
			Str("action", string(ch.Action)).
			Int64("version", ch.Version).
			Str("policy", string(policy)).
			Msg("apply failed")
		if policy == ApplyHalt {
			res.HaltedAt = ch.Version
			observeBatch(res)
			return res, fmt.Errorf("%w: %s %d at version %d: %v", ErrApply, ch.EntityType, ch.EntityID, ch.Version, err)
		}
	}
	observeBatch(res)
	return res, nil
}

func observeBatch(res BatchResult) {
	observability.ObserveApplied(observability.ApplyApplied, res.Applied)
	observability.ObserveApplied(observability.ApplySkipped, res.Skipped)
	observability.ObserveApplied(observability.ApplyFailed, res.Failed)
}
