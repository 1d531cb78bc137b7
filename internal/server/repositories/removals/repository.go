package removals

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/server/models"
)

// Repository is the outbox of memory records awaiting removal from the
// vector index. Rows are written in the same transaction that hides or
// purges the exchanges.
type Repository interface {
	Enqueue(ctx context.Context, items []models.PendingRemoval) error
	Pending(ctx context.Context, limit int) ([]*models.PendingRemoval, error)
	Ack(ctx context.Context, recordIDs []string) error
	MarkAttempt(ctx context.Context, recordIDs []string, lastErr string) error
}
