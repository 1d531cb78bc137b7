package models

import "time"

// PendingRemoval is an outbox row for a memory record that still has to be
// removed from the vector index.
type PendingRemoval struct {
	RecordID    string    `db:"record_id"`
	OwnerID     string    `db:"owner_id"`
	ExchangeID  string    `db:"exchange_id"`
	Attempts    int       `db:"attempts"`
	LastError   string    `db:"last_error"`
	CreatedAt   time.Time `db:"created_at"`
	LastAttempt time.Time `db:"last_attempt_at"`
}
