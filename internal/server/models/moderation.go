package models

import "time"

// ModerationRecord is an append-only audit entry for a flagged exchange.
// Response is nil when generation failed and only the message was scanned.
// ExchangeID is empty in the same case.
type ModerationRecord struct {
	ID         string    `db:"id"`
	OwnerID    string    `db:"owner_id"`
	ExchangeID string    `db:"exchange_id"`
	Message    string    `db:"message"`
	Response   *string   `db:"response"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}
