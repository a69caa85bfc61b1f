// Package services – SyncClient
//
// SyncClient runs the terminal side of synchronization. One cycle pushes the
// oldest pending outbox entries to the relay, then pulls remote changes above
// the local cursor and replays them. Only one cycle runs at a time per
// terminal; a second caller gets ErrCycleInProgress.
//
// Push: on success the batch is marked synced and last_push_at stamped in one
// local transaction. On failure every entry of the batch gets its attempt
// counter bumped and the cycle stops before pulling.
//
// Pull: every page is applied and the cursor advanced in the same local
// transaction. The cursor moves to the relay's latest version once the relay
// reports no more pages, to the last entry's version while pages remain, and
// to just before a failed change when the apply policy halts.
//
// Periodic mode schedules cycles with robfig/cron. Ticks that fire while a
// cycle is running are skipped, and after a failed cycle further ticks are
// held back by a capped exponential backoff.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/repo"

	"go.opentelemetry.io/otel/attribute"
)

// RelayTransport is the client's view of the relay.
type RelayTransport interface {
	Register(ctx context.Context, req domain.RegisterRequest) (int64, error)
	Push(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error)
	Pull(ctx context.Context, q domain.PullQuery) (*domain.PullResult, error)
	Health(ctx context.Context) error
}

// Status is the coarse sync state shown to operators.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Defaults applied by NewSyncClient to zero-valued options.
const (
	DefaultSyncInterval   = 30 * time.Second
	DefaultSyncBatchSize  = 100
	DefaultSyncTimeout    = 10 * time.Second
	DefaultBackoffInitial = 5 * time.Second
	DefaultBackoffMax     = 5 * time.Minute
	DefaultStuckAttempts  = 10
)

// batchKeyNamespace scopes UUIDv5 idempotency keys for push batches.
var batchKeyNamespace = uuid.MustParse("6f1c3f7e-2b0c-5c49-9a57-3d2b8f0e4a11")

// SyncOptions configures a SyncClient.
type SyncOptions struct {
	StoreID        int64
	DeviceName     string
	TerminalCode   string
	Interval       time.Duration
	BatchSize      int
	Timeout        time.Duration
	ApplyPolicy    ApplyPolicy
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StuckAttempts  int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.StoreID <= 0 {
		o.StoreID = 1
	}
	if o.Interval <= 0 {
		o.Interval = DefaultSyncInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultSyncBatchSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultSyncTimeout
	}
	if o.ApplyPolicy != ApplyHalt {
		o.ApplyPolicy = ApplySkip
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = DefaultBackoffInitial
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = max(DefaultBackoffMax, o.BackoffInitial)
	}
	if o.StuckAttempts <= 0 {
		o.StuckAttempts = DefaultStuckAttempts
	}
	return o
}

// CycleReport describes the outcome of one finished cycle.
type CycleReport struct {
	Pushed        int
	Pulled        int
	Applied       int
	Failed        int
	CursorVersion int64
}

// SyncState is a point-in-time snapshot for operators.
type SyncState struct {
	Identity      domain.TerminalIdentity
	Cursor        *domain.SyncCursor
	Pending       int64
	Stuck         int64
	Status        Status
	LastError     string
	LastCycle     CycleReport
	LastCycleTime time.Time
}

// SyncClient coordinates push and pull for one terminal.
type SyncClient struct {
	DB       *gorm.DB
	Relay    RelayTransport
	Registry *Registry
	Outbox   *Outbox

	opts SyncOptions
	log  zerolog.Logger
	now  func() time.Time

	busy atomic.Bool

	mu          sync.Mutex
	identity    *domain.TerminalIdentity
	status      Status
	lastErr     error
	lastReport  CycleReport
	lastCycleAt time.Time
	listeners   []func(Status)

	// periodic mode
	sched       *cron.Cron
	wg          *sync.WaitGroup // initial cycle of the current Start
	bo          *backoff.ExponentialBackOff
	nextAllowed time.Time
}

// NewSyncClient builds a client over the terminal database and a relay
// transport. Call Init before running cycles.
func NewSyncClient(db *gorm.DB, relay RelayTransport, opts SyncOptions) *SyncClient {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BackoffInitial
	bo.MaxInterval = opts.BackoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2

	return &SyncClient{
		DB:       db,
		Relay:    relay,
		Registry: DefaultRegistry(),
		Outbox:   NewOutbox(db, opts.StoreID),
		opts:     opts,
		log:      log.With().Str("component", "sync").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		status:   StatusIdle,
		bo:       bo,
	}
}

// Options returns the effective options after defaults.
func (c *SyncClient) Options() SyncOptions { return c.opts }

// Init loads or creates the terminal identity. An existing identity's store id
// wins over the configured one.
func (c *SyncClient) Init(ctx context.Context) error {
	id, err := EnsureIdentity(ctx, c.DB, c.opts.StoreID, c.opts.DeviceName, c.opts.TerminalCode)
	if err != nil {
		return fmt.Errorf("%w: identity: %v", ErrStorage, err)
	}
	if id.StoreID != c.opts.StoreID {
		c.log.Info().
			Int64("configured_store_id", c.opts.StoreID).
			Int64("store_id", id.StoreID).
			Msg("adopting store id from existing terminal identity")
	}

	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()

	c.Outbox.StoreID = id.StoreID
	c.Outbox.SetTerminalID(id.TerminalID)

	c.log.Info().
		Str("terminal_code", id.TerminalCode).
		Int64("terminal_id", id.TerminalID).
		Int64("store_id", id.StoreID).
		Msg("terminal identity loaded")
	return nil
}

// Identity returns a copy of the loaded identity, or nil before Init.
func (c *SyncClient) Identity() *domain.TerminalIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// Status returns the current coarse status.
func (c *SyncClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the error of the last failed cycle, or nil.
func (c *SyncClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnStatus registers fn to be called on every status change. fn runs on the
// cycle goroutine and must not block.
func (c *SyncClient) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *SyncClient) setStatus(st Status, err error) {
	c.mu.Lock()
	changed := c.status != st
	c.status = st
	c.lastErr = err
	ls := append([]func(Status){}, c.listeners...)
	c.mu.Unlock()

	if changed {
		for _, fn := range ls {
			fn(st)
		}
	}
}

// RunCycle performs one push/pull cycle. It returns ErrCycleInProgress when
// another cycle is running.
func (c *SyncClient) RunCycle(ctx context.Context) (CycleReport, error) {
	if !c.busy.CompareAndSwap(false, true) {
		observability.ObserveCycle("busy")
		return CycleReport{}, ErrCycleInProgress
	}
	defer c.busy.Store(false)

	ctx, span := observability.Tracer("sync").Start(ctx, "RunCycle")
	defer span.End()

	start := c.now()
	c.setStatus(StatusSyncing, nil)

	report, err := c.cycle(ctx)

	var st Status
	switch {
	case err == nil:
		st = StatusSynced
	case errors.Is(err, ErrNetwork):
		st = StatusOffline
	default:
		st = StatusError
	}
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.String("status", string(st)),
		attribute.Int("pushed", report.Pushed),
		attribute.Int("pulled", report.Pulled),
		attribute.Int64("cursor_version", report.CursorVersion),
	)

	c.mu.Lock()
	c.lastReport = report
	c.lastCycleAt = start
	c.mu.Unlock()
	c.setStatus(st, err)
	observability.ObserveCycle(string(st))
	c.refreshBacklog(ctx)

	ev := c.log.Info()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("status", string(st)).
		Int("pushed", report.Pushed).
		Int("pulled", report.Pulled).
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Int64("cursor_version", report.CursorVersion).
		Dur("took", c.now().Sub(start)).
		Msg("sync cycle finished")

	return report, err
}

func (c *SyncClient) cycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	id, err := c.ensureRegistered(ctx)
	if err != nil {
		return report, err
	}

	cur, err := repo.GetOrCreateCursor(ctx, c.DB, id.TerminalID)
	if err != nil {
		return report, fmt.Errorf("%w: cursor: %v", ErrStorage, err)
	}
	report.CursorVersion = cur.LastSyncVersion

	pushed, err := c.push(ctx, id)
	report.Pushed = pushed
	if err != nil {
		return report, err
	}

	if err := c.pull(ctx, id, cur.LastSyncVersion, &report); err != nil {
		return report, err
	}

	if err := repo.TouchLastSync(ctx, c.DB, id.ID, c.now()); err != nil {
		return report, fmt.Errorf("%w: last_sync_at: %v", ErrStorage, err)
	}
	return report, nil
}

// ensureRegistered obtains a relay terminal id on first contact.
func (c *SyncClient) ensureRegistered(ctx context.Context) (*domain.TerminalIdentity, error) {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()
	if id == nil {
		return nil, fmt.Errorf("%w: Init has not been called", ErrTerminalNotRegistered)
	}
	if id.Registered() {
		return id, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	tid, err := c.Relay.Register(callCtx, domain.RegisterRequest{
		TerminalCode: id.TerminalCode,
		StoreID:      id.StoreID,
		DeviceName:   id.DeviceName,
		IPAddress:    id.IPAddress,
	})
	if err != nil {
		return nil, err
	}
	if tid <= 0 {
		return nil, fmt.Errorf("%w: relay returned terminal id %d", ErrTerminalNotRegistered, tid)
	}
	if err := repo.SetTerminalID(ctx, c.DB, id.ID, tid); err != nil {
		return nil, fmt.Errorf("%w: save terminal id: %v", ErrStorage, err)
	}

	updated := *id
	updated.TerminalID = tid
	c.mu.Lock()
	c.identity = &updated
	c.mu.Unlock()
	c.Outbox.SetTerminalID(tid)

	c.log.Info().Int64("terminal_id", tid).Str("terminal_code", id.TerminalCode).Msg("terminal registered with relay")
	return &updated, nil
}

func (c *SyncClient) push(ctx context.Context, id *domain.TerminalIdentity) (int, error) {
	entries, err := repo.ListPendingOutbox(ctx, c.DB, c.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: list outbox: %v", ErrStorage, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(entries))
	changes := make([]domain.ChangeInput, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		changes[i] = domain.ChangeInput{
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Data:       e.Payload,
		}
	}
	req := domain.PushRequest{
		TerminalID:     id.TerminalID,
		StoreID:        id.StoreID,
		Changes:        changes,
		IdempotencyKey: BatchKey(id.TerminalID, ids),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	res, err := c.Relay.Push(callCtx, req)
	cancel()
	if err != nil {
		c.recordPushFailure(ctx, ids, err)
		return 0, err
	}

	now := c.now()
	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkOutboxSynced(ctx, tx, ids, now); err != nil {
			return err
		}
		return repo.TouchCursorPush(ctx, tx, id.TerminalID, now)
	})
	if err != nil {
		// The relay has the batch; the retry will be answered from its receipt.
		return 0, fmt.Errorf("%w: mark synced: %v", ErrStorage, err)
	}

	c.log.Debug().
		Int("changes", len(entries)).
		Int("changes_received", res.ChangesReceived).
		Int64("latest_version", res.LatestVersion).
		Bool("replayed", res.Replayed).
		Msg("push acknowledged")
	return len(entries), nil
}

func (c *SyncClient) recordPushFailure(ctx context.Context, ids []int64, cause error) {
	if err := repo.RecordOutboxFailure(ctx, c.DB, ids, c.now(), cause.Error()); err != nil {
		c.log.Error().Err(err).Msg("record push failure")
		return
	}
	stuck, err := repo.CountStuckOutbox(ctx, c.DB, c.opts.StuckAttempts)
	if err == nil && stuck > 0 {
		c.log.Warn().
			Int64("stuck", stuck).
			Int("threshold", c.opts.StuckAttempts).
			Str("last_error", cause.Error()).
			Msg("outbox entries are stuck")
	}
}

func (c *SyncClient) pull(ctx context.Context, id *domain.TerminalIdentity, since int64, report *CycleReport) error {
	for {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		res, err := c.Relay.Pull(callCtx, domain.PullQuery{
			TerminalID:   id.TerminalID,
			SinceVersion: since,
			StoreID:      id.StoreID,
		})
		cancel()
		if err != nil {
			return err
		}
		sort.SliceStable(res.Changes, func(i, j int) bool {
			return res.Changes[i].Version < res.Changes[j].Version
		})

		var (
			batch    BatchResult
			applyErr error
			target   int64
		)
		err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			batch, applyErr = ApplyBatch(ctx, tx, c.Registry, res.Changes, c.opts.ApplyPolicy)
			target = cursorTarget(res, batch)
			return repo.AdvanceCursor(ctx, tx, id.TerminalID, target, c.now())
		})
		if err != nil {
			return fmt.Errorf("%w: apply pulled changes: %v", ErrStorage, err)
		}

		report.Pulled += len(res.Changes)
		report.Applied += batch.Applied
		report.Failed += batch.Failed
		if target > report.CursorVersion {
			report.CursorVersion = target
		}

		if applyErr != nil {
			return applyErr
		}
		if !res.HasMore || len(res.Changes) == 0 {
			return nil
		}
		since = target
	}
}

// cursorTarget picks the version the cursor moves to after applying res.
func cursorTarget(res *domain.PullResult, batch BatchResult) int64 {
	switch {
	case batch.HaltedAt > 0:
		return batch.HaltedAt - 1
	case res.HasMore && len(res.Changes) > 0:
		return res.Changes[len(res.Changes)-1].Version
	default:
		return res.LatestVersion
	}
}

// BatchKey derives the push idempotency key from the terminal id and the
// outbox ids of a batch. Retrying the same batch yields the same key.
func BatchKey(terminalID int64, ids []int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(terminalID, 10))
	for _, id := range ids {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return uuid.NewSHA1(batchKeyNamespace, []byte(b.String())).String()
}

func (c *SyncClient) refreshBacklog(ctx context.Context) {
	pending, err := repo.CountPendingOutbox(ctx, c.DB)
	if err != nil {
		return
	}
	stuck, err := repo.CountStuckOutbox(ctx, c.DB, c.opts.StuckAttempts)
	if err != nil {
		return
	}
	observability.SetOutboxBacklog(pending, stuck)
}

// CheckHealth reports whether the relay answers its health endpoint.
func (c *SyncClient) CheckHealth(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	return c.Relay.Health(callCtx)
}

// Snapshot returns identity, cursor and outbox counters for operators.
func (c *SyncClient) Snapshot(ctx context.Context) (*SyncState, error) {
	id := c.Identity()
	if id == nil {
		return nil, fmt.Errorf("%w: Init has not been called", ErrTerminalNotRegistered)
	}
	st := &SyncState{Identity: *id, Status: c.Status()}
	if err := c.LastError(); err != nil {
		st.LastError = err.Error()
	}
	c.mu.Lock()
	st.LastCycle = c.lastReport
	st.LastCycleTime = c.lastCycleAt
	c.mu.Unlock()

	var err error
	if st.Pending, err = repo.CountPendingOutbox(ctx, c.DB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if st.Stuck, err = repo.CountStuckOutbox(ctx, c.DB, c.opts.StuckAttempts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if id.Registered() {
		if st.Cursor, err = repo.GetOrCreateCursor(ctx, c.DB, id.TerminalID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	return st, nil
}

// Start begins periodic sync: one cycle right away, then one per interval.
// Calling Start on a running client is a no-op. Cycles run on a context
// detached from ctx's cancellation so Stop never aborts one mid-flight.
func (c *SyncClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sched != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx := context.WithoutCancel(ctx)
	cl := cronLogger{l: c.log}
	job := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() { c.tick(runCtx) }))

	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.wg = wg
	c.sched = cron.New(cron.WithLogger(cl))
	c.sched.Schedule(cron.Every(c.opts.Interval), job)
	c.sched.Start()
	c.mu.Unlock()

	go func() {
		defer wg.Done()
		job.Run()
	}()

	c.log.Info().Dur("interval", c.opts.Interval).Msg("periodic sync started")
	return nil
}

// Stop halts periodic sync and waits for an in-flight cycle to finish or for
// ctx to expire. Calling Stop on a stopped client is a no-op.
func (c *SyncClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	sched, wg := c.sched, c.wg
	c.sched, c.wg = nil, nil
	c.mu.Unlock()
	if sched == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-sched.Stop().Done()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("periodic sync stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether periodic sync is active.
func (c *SyncClient) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched != nil
}

// tick runs one periodic cycle unless the failure backoff is still active.
func (c *SyncClient) tick(ctx context.Context) {
	now := c.now()
	c.mu.Lock()
	wait := c.nextAllowed
	c.mu.Unlock()
	if now.Before(wait) {
		c.log.Debug().Time("next_attempt", wait).Msg("sync tick skipped; backing off")
		return
	}

	_, err := c.RunCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.bo.Reset()
		c.nextAllowed = time.Time{}
		return
	}
	d := c.bo.NextBackOff()
	if d == backoff.Stop {
		d = c.opts.BackoffMax
	}
	c.nextAllowed = now.Add(d)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
