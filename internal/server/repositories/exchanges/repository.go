package exchanges

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/server/models"
)

// Repository is the exchange store. The deleted flag is the only mutable
// column; every user-facing read filters on it.
type Repository interface {
	Create(ctx context.Context, exchange *models.Exchange) (*models.Exchange, error)

	ListVisible(ctx context.Context, ownerID string, limit, offset int, desc bool) ([]*models.Exchange, error)
	CountVisible(ctx context.Context, ownerID string) (int64, error)

	ListAll(ctx context.Context, ownerID string, visibility models.Visibility, limit, offset int) ([]*models.Exchange, error)
	CountByVisibility(ctx context.Context, ownerID string) (models.VisibilityCounts, error)
	DeletedIDs(ctx context.Context, ownerID string) ([]string, error)
	VisibleIDs(ctx context.Context, ownerID string, ids []string) ([]string, error)
	Owners(ctx context.Context) ([]string, error)

	SoftDelete(ctx context.Context, ownerID string, ids []string) ([]string, error)
	DeletePermanently(ctx context.Context, ownerID string, ids []string) ([]string, error)
}
