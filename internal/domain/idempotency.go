// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// PushReceipt records the result of a previously accepted push batch, keyed
// by (terminal_id, key). A retried batch carrying the same Idempotency-Key is
// answered from the receipt instead of being appended to the change log again.
type PushReceipt struct {
	ID              string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	TerminalID      int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_terminal_key,priority:1"`
	Key             string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_terminal_key,priority:2"`
	ChangesReceived int       `gorm:"type:INTEGER NOT NULL"`
	LatestVersion   int64     `gorm:"type:INTEGER NOT NULL"`
	CreatedAt       time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt       time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (PushReceipt) TableName() string { return "push_receipts" }
