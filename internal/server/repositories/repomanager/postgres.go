// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/server/migrations"
	"github.com/dmitrijs2005/companion/internal/server/repositories/exchanges"
	"github.com/dmitrijs2005/companion/internal/server/repositories/moderation"
	"github.com/dmitrijs2005/companion/internal/server/repositories/removals"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories bound to a
// *sql.DB or an open transaction.
type PostgresRepositoryManager struct{}

// Exchanges returns an exchanges.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Exchanges(db dbx.DBTX) exchanges.Repository {
	return exchanges.NewPostgresRepository(db)
}

// Moderation returns a moderation.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Moderation(db dbx.DBTX) moderation.Repository {
	return moderation.NewPostgresRepository(db)
}

// Removals returns a removals.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Removals(db dbx.DBTX) removals.Repository {
	return removals.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
