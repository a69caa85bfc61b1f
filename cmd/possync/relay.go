package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/pos-sync/internal/config"
	httpapi "github.com/tbourn/pos-sync/internal/http"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/repo"
	"github.com/tbourn/pos-sync/internal/services"
	"github.com/tbourn/pos-sync/internal/sysutil"
)

const (
	shutdownTimeout      = 15 * time.Second
	receiptPurgeSchedule = "@every 10m"
)

func newRelayCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the relay HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Port = sysutil.FirstNonEmpty(port, cfg.Port)
			return runRelay(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func runRelay(ctx context.Context, cfg config.Config) error {
	closer, err := sysutil.SetupLogger(cfg.Log, "possync-relay")
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.RoleRelay, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	target := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		target = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.DBDriver, target)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrateRelay(db); err != nil {
		return err
	}

	relay := services.NewRelayService(db, cfg.PullPageSize, cfg.IdempotencyTTL)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, relay, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	janitor := cron.New()
	if _, err := janitor.AddFunc(receiptPurgeSchedule, func() {
		n, err := relay.PurgeReceipts(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("purge push receipts")
			return
		}
		if n > 0 {
			log.Info().Int64("purged", n).Msg("expired push receipts removed")
		}
	}); err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db_driver", cfg.DBDriver).
			Int("pull_page_size", cfg.PullPageSize).
			Str("version", version).
			Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down relay")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
