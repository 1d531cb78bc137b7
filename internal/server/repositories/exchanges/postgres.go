// Package exchanges provides the PostgreSQL-backed exchange store.
package exchanges

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/oklog/ulid/v2"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newID returns a time-ordered identifier, so id order matches creation order.
var newID = func() string {
	return ulid.Make().String()
}

const exchangeColumns = `id, owner_id, message, response, deleted, created_at`

// Create inserts a visible exchange and fills in its ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, exchange *models.Exchange) (*models.Exchange, error) {
	if exchange.ID == "" {
		exchange.ID = newID()
	}

	query := `INSERT INTO exchanges (id, owner_id, message, response)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		exchange.ID, exchange.OwnerID, exchange.Message, exchange.Response).Scan(&exchange.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	exchange.Deleted = false

	return exchange, nil
}

// ListVisible returns up to limit visible exchanges of the owner ordered by
// creation time, newest first when desc is set.
func (r *PostgresRepository) ListVisible(ctx context.Context, ownerID string, limit, offset int, desc bool) ([]*models.Exchange, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM exchanges
		WHERE owner_id = $1 AND deleted = FALSE
		ORDER BY created_at %s, id %s
		LIMIT $2 OFFSET $3`, exchangeColumns, order, order)

	return r.query(ctx, query, ownerID, limit, offset)
}

func (r *PostgresRepository) CountVisible(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exchanges WHERE owner_id = $1 AND deleted = FALSE`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListAll is the admin view: soft-deleted rows are included unless filtered
// out by visibility. Newest first.
func (r *PostgresRepository) ListAll(ctx context.Context, ownerID string, visibility models.Visibility, limit, offset int) ([]*models.Exchange, error) {
	filter := ""
	switch visibility {
	case models.VisibilityActive:
		filter = " AND deleted = FALSE"
	case models.VisibilityDeleted:
		filter = " AND deleted = TRUE"
	}
	query := fmt.Sprintf(`SELECT %s FROM exchanges
		WHERE owner_id = $1%s
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, exchangeColumns, filter)

	return r.query(ctx, query, ownerID, limit, offset)
}

func (r *PostgresRepository) CountByVisibility(ctx context.Context, ownerID string) (models.VisibilityCounts, error) {
	var c models.VisibilityCounts
	query := `SELECT
			COUNT(*) FILTER (WHERE deleted = FALSE),
			COUNT(*) FILTER (WHERE deleted = TRUE)
		FROM exchanges WHERE owner_id = $1`
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&c.Active, &c.Deleted); err != nil {
		return models.VisibilityCounts{}, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) DeletedIDs(ctx context.Context, ownerID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT id FROM exchanges WHERE owner_id = $1 AND deleted = TRUE ORDER BY id`, ownerID)
}

// VisibleIDs returns the subset of ids that exist for the owner and are not
// soft-deleted. No ids means no query.
func (r *PostgresRepository) VisibleIDs(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	query := fmt.Sprintf(`SELECT id FROM exchanges
		WHERE owner_id = $1 AND deleted = FALSE AND id IN (%s)`, dbx.Placeholders(2, len(ids)))

	return r.queryIDs(ctx, query, dbx.StringArgs(ids, ownerID)...)
}

// Owners lists every owner that has at least one exchange.
func (r *PostgresRepository) Owners(ctx context.Context) ([]string, error) {
	return r.queryIDs(ctx, `SELECT DISTINCT owner_id FROM exchanges ORDER BY owner_id`)
}

// SoftDelete flips visible exchanges of the owner to deleted in one
// statement and returns exactly the ids it flipped. An empty ids slice
// targets every visible exchange of the owner.
func (r *PostgresRepository) SoftDelete(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	query := `UPDATE exchanges SET deleted = TRUE
		WHERE owner_id = $1 AND deleted = FALSE`
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id IN (%s)", dbx.Placeholders(2, len(ids)))
	}
	query += " RETURNING id"

	return r.queryIDs(ctx, query, dbx.StringArgs(ids, ownerID)...)
}

// DeletePermanently removes exchanges of the owner regardless of their
// deleted flag and returns the ids removed. An empty ids slice purges the
// owner's whole history.
func (r *PostgresRepository) DeletePermanently(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	query := `DELETE FROM exchanges WHERE owner_id = $1`
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id IN (%s)", dbx.Placeholders(2, len(ids)))
	}
	query += " RETURNING id"

	return r.queryIDs(ctx, query, dbx.StringArgs(ids, ownerID)...)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Exchange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select exchanges: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Exchange, 0)
	for rows.Next() {
		var item models.Exchange
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Message, &item.Response, &item.Deleted, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
