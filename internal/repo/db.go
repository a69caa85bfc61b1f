// Package repo implements the data persistence layer for the sync core,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver, used by terminals and by default by the relay),
// Postgres (optional relay store) and the schema migrations of each side.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/pos-sync/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenPostgres opens a Postgres database for the relay change log.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}

// Open selects the driver by name ("sqlite" or "postgres"). For sqlite the
// target is a file path, for postgres a DSN.
func Open(driver, target string) (*gorm.DB, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(target)
	case "postgres":
		return OpenPostgres(target)
	default:
		return nil, errors.New("unsupported database driver: " + driver)
	}
}

// AutoMigrateTerminal creates the terminal-local schema: sync bookkeeping
// plus the entity tables remote changes are replayed into.
func AutoMigrateTerminal(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.OutboxEntry{},
		&domain.SyncCursor{},
		&domain.TerminalIdentity{},
		&domain.Category{},
		&domain.Product{},
		&domain.User{},
	)
}

// AutoMigrateRelay creates the relay schema and seeds the global version
// counter row.
func AutoMigrateRelay(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.ChangeLogEntry{},
		&domain.VersionCounter{},
		&domain.RelayTerminal{},
		&domain.PushReceipt{},
	); err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.VersionCounter{Name: domain.GlobalVersionCounter, Value: 0}).Error
}
