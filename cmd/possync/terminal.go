package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/pos-sync/internal/config"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/relayclient"
	"github.com/tbourn/pos-sync/internal/repo"
	"github.com/tbourn/pos-sync/internal/services"
	"github.com/tbourn/pos-sync/internal/sysutil"
)

// terminalFlags override the matching environment settings when set.
type terminalFlags struct {
	relayURL     string
	dbPath       string
	terminalCode string
	policy       string
}

func newTerminalCmd() *cobra.Command {
	var f terminalFlags
	cmd := &cobra.Command{
		Use:   "terminal",
		Short: "Terminal-side sync client",
	}
	cmd.PersistentFlags().StringVar(&f.relayURL, "relay", "", "relay base URL (overrides RELAY_URL)")
	cmd.PersistentFlags().StringVar(&f.dbPath, "db", "", "terminal database path (overrides TERMINAL_DB_PATH)")
	cmd.PersistentFlags().StringVar(&f.terminalCode, "code", "", "terminal code (overrides TERMINAL_CODE)")
	cmd.PersistentFlags().StringVar(&f.policy, "apply-policy", "", "skip|halt on a failing remote change (overrides APPLY_FAILURE_POLICY)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Sync periodically until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withTerminal(cmd.Context(), f, runTerminal)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync cycle",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withTerminal(cmd.Context(), f, syncOnce)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show identity, outbox backlog, cursor and relay health",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withTerminal(cmd.Context(), f, func(ctx context.Context, c *services.SyncClient, _ config.Config) error {
					return printStatus(ctx, c, cmd.OutOrStdout())
				})
			},
		},
	)
	return cmd
}

// withTerminal loads config, opens the terminal database and builds an
// initialized SyncClient, then hands it to fn.
func withTerminal(ctx context.Context, f terminalFlags, fn func(context.Context, *services.SyncClient, config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Sync.RelayURL = sysutil.FirstNonEmpty(f.relayURL, cfg.Sync.RelayURL)
	cfg.Sync.DBPath = sysutil.FirstNonEmpty(f.dbPath, cfg.Sync.DBPath)
	cfg.Sync.TerminalCode = sysutil.FirstNonEmpty(f.terminalCode, cfg.Sync.TerminalCode)
	cfg.Sync.ApplyPolicy = sysutil.FirstNonEmpty(f.policy, cfg.Sync.ApplyPolicy)

	closer, err := sysutil.SetupLogger(cfg.Log, "possync-terminal")
	if err != nil {
		return err
	}
	defer closer.Close()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.RoleTerminal, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	db, err := openTerminalDB(cfg.Sync.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	rc, err := relayclient.New(cfg.Sync.RelayURL, nil, cfg.Sync.Timeout)
	if err != nil {
		return err
	}
	client := services.NewSyncClient(db, rc, services.SyncOptions{
		StoreID:        cfg.Sync.StoreID,
		DeviceName:     cfg.Sync.DeviceName,
		TerminalCode:   cfg.Sync.TerminalCode,
		Interval:       cfg.Sync.Interval,
		BatchSize:      cfg.Sync.BatchSize,
		Timeout:        cfg.Sync.Timeout,
		ApplyPolicy:    services.ParseApplyPolicy(cfg.Sync.ApplyPolicy),
		BackoffInitial: cfg.Sync.BackoffInitial,
		BackoffMax:     cfg.Sync.BackoffMax,
		StuckAttempts:  cfg.Sync.StuckAttempts,
	})
	if err := client.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, client, cfg)
}

func openTerminalDB(path string) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open terminal db %q: %w", path, err)
	}
	if err := repo.AutoMigrateTerminal(db); err != nil {
		return nil, fmt.Errorf("migrate terminal db: %w", err)
	}
	return db, nil
}

func runTerminal(ctx context.Context, c *services.SyncClient, _ config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.OnStatus(func(st services.Status) {
		log.Info().Str("status", string(st)).Msg("sync status changed")
	})
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return c.Stop(sctx)
}

func syncOnce(ctx context.Context, c *services.SyncClient, _ config.Config) error {
	rep, err := c.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("sync cycle (%s): %w", c.Status(), err)
	}
	log.Info().
		Int("pushed", rep.Pushed).
		Int("pulled", rep.Pulled).
		Int("applied", rep.Applied).
		Int("failed", rep.Failed).
		Int64("cursor_version", rep.CursorVersion).
		Msg("sync complete")
	return nil
}

// statusView is the JSON printed by `terminal status`.
type statusView struct {
	TerminalCode    string     `json:"terminal_code"`
	TerminalID      int64      `json:"terminal_id"`
	StoreID         int64      `json:"store_id"`
	Pending         int64      `json:"pending"`
	Stuck           int64      `json:"stuck"`
	LastSyncVersion int64      `json:"last_sync_version"`
	LastPushAt      *time.Time `json:"last_push_at,omitempty"`
	LastPullAt      *time.Time `json:"last_pull_at,omitempty"`
	RelayReachable  bool       `json:"relay_reachable"`
	RelayError      string     `json:"relay_error,omitempty"`
}

func printStatus(ctx context.Context, c *services.SyncClient, w io.Writer) error {
	st, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	v := statusView{
		TerminalCode: st.Identity.TerminalCode,
		TerminalID:   st.Identity.TerminalID,
		StoreID:      st.Identity.StoreID,
		Pending:      st.Pending,
		Stuck:        st.Stuck,
	}
	if st.Cursor != nil {
		v.LastSyncVersion = st.Cursor.LastSyncVersion
		v.LastPushAt = st.Cursor.LastPushAt
		v.LastPullAt = st.Cursor.LastPullAt
	}
	if err := c.CheckHealth(ctx); err != nil {
		v.RelayError = err.Error()
		if !errors.Is(err, services.ErrNetwork) {
			log.Warn().Err(err).Msg("relay health check")
		}
	} else {
		v.RelayReachable = true
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
