// Package services – RelayService
//
// RelayService owns the relay's change log. Push validates a batch and
// appends it with contiguous versions in a single write transaction; version
// reservation is additionally serialized by an in-process mutex so pushes on
// one relay never interleave. Pull serves pages of changes above a terminal's
// cursor, excluding the terminal's own changes.
//
// Observability: public methods are OpenTelemetry-instrumented with terminal
// and version attributes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPullPageSize caps the number of changes returned by one pull.
const DefaultPullPageSize = 1000

// RelayService implements push, pull and terminal registration.
type RelayService struct {
	DB *gorm.DB

	// PageSize caps pull results. Zero means DefaultPullPageSize.
	PageSize int
	// ReceiptTTL is how long push receipts answer retries. Zero disables receipts.
	ReceiptTTL time.Duration

	mu sync.Mutex
}

// NewRelayService returns a RelayService with the given page size and receipt TTL.
func NewRelayService(db *gorm.DB, pageSize int, receiptTTL time.Duration) *RelayService {
	return &RelayService{DB: db, PageSize: pageSize, ReceiptTTL: receiptTTL}
}

func (s *RelayService) pageSize() int {
	if s.PageSize <= 0 {
		return DefaultPullPageSize
	}
	return s.PageSize
}

// Push appends req.Changes to the change log in array order and returns the
// number of accepted changes and the new latest version. A retry carrying an
// IdempotencyKey already seen for this terminal is answered from its receipt.
func (s *RelayService) Push(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	ctx, span := observability.Tracer("relay").Start(ctx, "Push",
		trace.WithAttributes(
			attribute.Int64("terminal.id", req.TerminalID),
			attribute.Int64("store.id", req.StoreID),
			attribute.Int("changes", len(req.Changes)),
		),
	)
	defer span.End()

	entries, err := validatePush(req)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	useReceipt := key != "" && s.ReceiptTTL > 0

	if useReceipt {
		if res, ok := s.replay(ctx, req.TerminalID, key); ok {
			return res, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var latest int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entries) == 0 {
			v, err := repo.LatestVersion(ctx, tx)
			latest = v
			return err
		}
		first, err := repo.ReserveVersions(ctx, tx, len(entries))
		if err != nil {
			return err
		}
		for i := range entries {
			entries[i].Version = first + int64(i)
		}
		if err := repo.AppendChanges(ctx, tx, entries); err != nil {
			return err
		}
		latest = first + int64(len(entries)) - 1

		if useReceipt {
			if _, err := repo.CreatePushReceipt(ctx, tx, req.TerminalID, key, len(entries), latest, s.ReceiptTTL); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// Same key committed by another relay process between replay and insert.
		if res, ok := s.replay(ctx, req.TerminalID, key); ok {
			return res, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: push: %v", ErrStorage, err)
	}

	observability.ObserveAppend(len(entries), latest)
	span.SetAttributes(attribute.Int64("latest_version", latest))
	s.touch(ctx, req.TerminalID)

	return &domain.PushResult{ChangesReceived: len(entries), LatestVersion: latest}, nil
}

func (s *RelayService) replay(ctx context.Context, terminalID int64, key string) (*domain.PushResult, bool) {
	rec, err := repo.GetPushReceipt(ctx, s.DB, terminalID, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	observability.ObserveReplay()
	return &domain.PushResult{
		ChangesReceived: rec.ChangesReceived,
		LatestVersion:   rec.LatestVersion,
		Replayed:        true,
	}, true
}

// validatePush checks the batch shape and converts it into change-log rows
// without versions.
func validatePush(req domain.PushRequest) ([]domain.ChangeLogEntry, error) {
	if req.TerminalID <= 0 {
		return nil, fmt.Errorf("%w: terminal_id is required", ErrInvalidRequest)
	}
	if req.StoreID <= 0 {
		return nil, fmt.Errorf("%w: store_id is required", ErrInvalidRequest)
	}
	if req.Changes == nil {
		return nil, fmt.Errorf("%w: changes must be a list", ErrInvalidRequest)
	}
	terminal := req.TerminalID
	out := make([]domain.ChangeLogEntry, 0, len(req.Changes))
	for i, ch := range req.Changes {
		et := NormalizeEntityType(ch.EntityType)
		switch {
		case et == "":
			return nil, fmt.Errorf("%w: changes[%d]: entity_type is required", ErrInvalidRequest, i)
		case ch.EntityID <= 0:
			return nil, fmt.Errorf("%w: changes[%d]: entity_id must be positive", ErrInvalidRequest, i)
		case !ch.Action.Valid():
			return nil, fmt.Errorf("%w: changes[%d]: unknown action %q", ErrInvalidRequest, i, ch.Action)
		}
		out = append(out, domain.ChangeLogEntry{
			StoreID:    req.StoreID,
			TerminalID: &terminal,
			EntityType: et,
			EntityID:   ch.EntityID,
			Action:     ch.Action,
			Payload:    ch.Data,
		})
	}
	return out, nil
}

// Pull returns one page of changes with version above q.SinceVersion that
// were not produced by q.TerminalID, ascending by version. LatestVersion is
// the relay's global latest version regardless of matches.
func (s *RelayService) Pull(ctx context.Context, q domain.PullQuery) (*domain.PullResult, error) {
	ctx, span := observability.Tracer("relay").Start(ctx, "Pull",
		trace.WithAttributes(
			attribute.Int64("terminal.id", q.TerminalID),
			attribute.Int64("since_version", q.SinceVersion),
		),
	)
	defer span.End()

	if q.TerminalID <= 0 {
		return nil, fmt.Errorf("%w: terminal_id is required", ErrInvalidRequest)
	}
	if q.SinceVersion < 0 {
		q.SinceVersion = 0
	}
	limit := s.pageSize()

	res := &domain.PullResult{Changes: []domain.ChangeLogEntry{}}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := repo.LatestVersion(ctx, tx)
		if err != nil {
			return err
		}
		rows, err := repo.ListChangesSince(ctx, tx, repo.ChangeQuery{
			Since:           q.SinceVersion,
			Until:           latest,
			ExcludeTerminal: q.TerminalID,
			StoreID:         q.StoreID,
			Limit:           limit,
		})
		if err != nil {
			return err
		}
		res.LatestVersion = latest
		res.Changes = rows
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: pull: %v", ErrStorage, err)
	}

	res.Count = len(res.Changes)
	res.HasMore = res.Count == limit && res.Changes[res.Count-1].Version < res.LatestVersion
	span.SetAttributes(attribute.Int("count", res.Count), attribute.Int64("latest_version", res.LatestVersion))
	s.touch(ctx, q.TerminalID)

	return res, nil
}

// Register upserts a terminal by (store_id, terminal_code) and returns its id.
func (s *RelayService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RelayTerminal, error) {
	ctx, span := observability.Tracer("relay").Start(ctx, "Register",
		trace.WithAttributes(
			attribute.String("terminal.code", req.TerminalCode),
			attribute.Int64("store.id", req.StoreID),
		),
	)
	defer span.End()

	req.TerminalCode = strings.TrimSpace(req.TerminalCode)
	if req.TerminalCode == "" {
		return nil, fmt.Errorf("%w: terminal_code is required", ErrInvalidRequest)
	}
	if req.StoreID <= 0 {
		return nil, fmt.Errorf("%w: store_id is required", ErrInvalidRequest)
	}
	t, err := repo.UpsertRelayTerminal(ctx, s.DB, req, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: register: %v", ErrStorage, err)
	}
	return t, nil
}

// PurgeReceipts removes expired push receipts.
func (s *RelayService) PurgeReceipts(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredReceipts(ctx, s.DB, time.Now().UTC())
}

// touch records terminal activity. Failures never fail the request.
func (s *RelayService) touch(ctx context.Context, terminalID int64) {
	if err := repo.TouchRelayTerminal(ctx, s.DB, terminalID, time.Now().UTC()); err != nil {
		log.Debug().Err(err).Int64("terminal_id", terminalID).Msg("touch relay terminal")
	}
}
