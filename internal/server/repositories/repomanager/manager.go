package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/companion/internal/dbx"
	"github.com/dmitrijs2005/companion/internal/server/repositories/exchanges"
	"github.com/dmitrijs2005/companion/internal/server/repositories/moderation"
	"github.com/dmitrijs2005/companion/internal/server/repositories/removals"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Exchanges(db dbx.DBTX) exchanges.Repository
	Moderation(db dbx.DBTX) moderation.Repository
	Removals(db dbx.DBTX) removals.Repository
}
