// Package moderation provides the PostgreSQL-backed moderation record store.
package moderation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends a record, assigning an ID when none is set.
func (r *PostgresRepository) Create(ctx context.Context, record *models.ModerationRecord) (*models.ModerationRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	query := `INSERT INTO moderation_records (id, owner_id, exchange_id, message, response, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		record.ID, record.OwnerID, nullString(record.ExchangeID), record.Message, record.Response, record.Reason,
	).Scan(&record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

// List returns the newest records first. An empty ownerID lists every owner.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, limit int) ([]*models.ModerationRecord, error) {
	query := `SELECT id, owner_id, exchange_id, message, response, reason, created_at
		FROM moderation_records`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select moderation records: %w", err)
	}
	defer rows.Close()

	result := make([]*models.ModerationRecord, 0)
	for rows.Next() {
		var (
			item       models.ModerationRecord
			exchangeID sql.NullString
			response   sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.OwnerID, &exchangeID, &item.Message, &response, &item.Reason, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.ExchangeID = exchangeID.String
		if response.Valid {
			s := response.String
			item.Response = &s
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
