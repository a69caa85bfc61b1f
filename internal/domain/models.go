// Package domain defines the persistence models for the sync core: the
// terminal-side outbox, sync cursor and identity, and the relay-side change
// log. These types are mapped with GORM and shared by the repository,
// service, and HTTP layers.
package domain

import (
	"time"
)

// Action is the kind of mutation carried by an outbox or change-log entry.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of create, update, or delete.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// OutboxEntry is one local mutation waiting to be pushed to the relay.
//
// Entries are append-only: the sync client only flips Synced or records a
// failed attempt. They are pushed in (created_at, id) order.
//
// Fields:
//   - EntityType / EntityID: which row changed (e.g. "product", 42).
//   - Action: create, update or delete.
//   - Payload: JSON snapshot of the entity after the mutation.
//   - StoreID / TerminalID: origin of the mutation; TerminalID is 0 until the
//     terminal has been registered with the relay.
//   - Synced / SyncedAt: set once the relay confirmed the containing batch.
//   - SyncAttempts / LastAttemptAt / LastError: failed push bookkeeping.
type OutboxEntry struct {
	ID            int64      `json:"id"              gorm:"primaryKey;autoIncrement"`
	EntityType    string     `json:"entity_type"     gorm:"type:varchar(64);not null"`
	EntityID      int64      `json:"entity_id"       gorm:"not null"`
	Action        Action     `json:"action"          gorm:"type:varchar(16);not null;check:action IN ('create','update','delete')"`
	Payload       string     `json:"payload"         gorm:"type:text;not null;default:''"`
	StoreID       int64      `json:"store_id"        gorm:"not null"`
	TerminalID    int64      `json:"terminal_id"     gorm:"not null;default:0"`
	Synced        bool       `json:"synced"          gorm:"not null;default:false;index:idx_outbox_pending,priority:1"`
	SyncAttempts  int        `json:"sync_attempts"   gorm:"not null;default:0"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text;not null;default:''"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"      gorm:"not null;index:idx_outbox_pending,priority:2"`
}

// TableName returns the database table name for OutboxEntry.
func (OutboxEntry) TableName() string { return "sync_outbox" }

// SyncCursor is the per-terminal sync watermark. LastSyncVersion is the
// highest relay version this terminal has applied and is the pull watermark.
type SyncCursor struct {
	TerminalID      int64      `json:"terminal_id"       gorm:"primaryKey;autoIncrement:false"`
	LastSyncVersion int64      `json:"last_sync_version" gorm:"not null;default:0"`
	LastPullAt      *time.Time `json:"last_pull_at,omitempty"`
	LastPushAt      *time.Time `json:"last_push_at,omitempty"`
}

// TableName returns the database table name for SyncCursor.
func (SyncCursor) TableName() string { return "sync_cursor" }

// TerminalIdentity describes the local terminal. It is created once on first
// run and reused afterwards.
//
// TerminalCode is derived from the host name and is stable across restarts.
// TerminalID is assigned by the relay on registration and stays 0 while the
// terminal has never reached the relay.
type TerminalIdentity struct {
	ID           int64      `json:"id"            gorm:"primaryKey;autoIncrement"`
	TerminalCode string     `json:"terminal_code" gorm:"type:varchar(128);not null;uniqueIndex"`
	TerminalID   int64      `json:"terminal_id"   gorm:"not null;default:0"`
	StoreID      int64      `json:"store_id"      gorm:"not null"`
	DeviceName   string     `json:"device_name"   gorm:"type:varchar(255);not null;default:''"`
	IPAddress    string     `json:"ip_address"    gorm:"type:varchar(64);not null;default:''"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for TerminalIdentity.
func (TerminalIdentity) TableName() string { return "terminal_identity" }

// Registered reports whether the relay has assigned a terminal id.
func (t *TerminalIdentity) Registered() bool { return t != nil && t.TerminalID > 0 }

// ChangeLogEntry is one accepted mutation in the relay's append-only log.
// Version is assigned by the relay at insert time and totally orders all
// changes across terminals. TerminalID is nil for changes not owned by any
// terminal (e.g. seeded by an operator).
type ChangeLogEntry struct {
	ID         int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	StoreID    int64     `json:"store_id"    gorm:"not null;index"`
	TerminalID *int64    `json:"terminal_id" gorm:"index"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(64);not null"`
	EntityID   int64     `json:"entity_id"   gorm:"not null"`
	Action     Action    `json:"action"      gorm:"type:varchar(16);not null"`
	Payload    string    `json:"payload"     gorm:"type:text;not null;default:''"`
	Version    int64     `json:"version"     gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ChangeLogEntry.
func (ChangeLogEntry) TableName() string { return "change_log" }

// VersionCounter holds the relay's global version sequence. A single row
// named GlobalVersionCounter exists per relay database.
type VersionCounter struct {
	Name  string `gorm:"type:varchar(32);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

// TableName returns the database table name for VersionCounter.
func (VersionCounter) TableName() string { return "version_counters" }

// GlobalVersionCounter is the name of the relay's version sequence row.
const GlobalVersionCounter = "global"

// RelayTerminal is a terminal known to the relay. Terminal ids handed out by
// the relay are the primary keys of this table.
type RelayTerminal struct {
	ID           int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	StoreID      int64     `json:"store_id"      gorm:"not null;uniqueIndex:ux_relay_terminal,priority:1"`
	TerminalCode string    `json:"terminal_code" gorm:"type:varchar(128);not null;uniqueIndex:ux_relay_terminal,priority:2"`
	DeviceName   string    `json:"device_name"   gorm:"type:varchar(255);not null;default:''"`
	IPAddress    string    `json:"ip_address"    gorm:"type:varchar(64);not null;default:''"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for RelayTerminal.
func (RelayTerminal) TableName() string { return "relay_terminals" }
