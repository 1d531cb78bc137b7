// Package removals provides the PostgreSQL-backed memory removal outbox.
package removals

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Enqueue inserts outbox rows; rows already queued for the same record are kept as is.
func (r *PostgresRepository) Enqueue(ctx context.Context, items []models.PendingRemoval) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*3)
	for i, it := range items {
		values = append(values, fmt.Sprintf("(%s)", dbx.Placeholders(i*3+1, 3)))
		args = append(args, it.RecordID, it.OwnerID, it.ExchangeID)
	}

	query := `INSERT INTO pending_memory_removals (record_id, owner_id, exchange_id) VALUES ` +
		strings.Join(values, ", ") +
		` ON CONFLICT (record_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Pending returns up to limit rows, least recently attempted first.
func (r *PostgresRepository) Pending(ctx context.Context, limit int) ([]*models.PendingRemoval, error) {
	query := `SELECT record_id, owner_id, exchange_id, attempts, last_error, created_at, last_attempt_at
		FROM pending_memory_removals
		ORDER BY last_attempt_at ASC, record_id ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending removals: %w", err)
	}
	defer rows.Close()

	result := make([]*models.PendingRemoval, 0)
	for rows.Next() {
		var item models.PendingRemoval
		if err := rows.Scan(&item.RecordID, &item.OwnerID, &item.ExchangeID, &item.Attempts,
			&item.LastError, &item.CreatedAt, &item.LastAttempt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Ack deletes rows whose removal has been confirmed.
func (r *PostgresRepository) Ack(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM pending_memory_removals WHERE record_id IN (%s)`,
		dbx.Placeholders(1, len(recordIDs)))
	if _, err := r.db.ExecContext(ctx, query, dbx.StringArgs(recordIDs)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkAttempt bumps the attempt counter and records the failure.
func (r *PostgresRepository) MarkAttempt(ctx context.Context, recordIDs []string, lastErr string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE pending_memory_removals
		SET attempts = attempts + 1, last_error = $1, last_attempt_at = now()
		WHERE record_id IN (%s)`, dbx.Placeholders(2, len(recordIDs)))
	if _, err := r.db.ExecContext(ctx, query, dbx.StringArgs(recordIDs, lastErr)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
