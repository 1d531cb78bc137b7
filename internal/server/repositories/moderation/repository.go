package moderation

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/server/models"
)

// Repository stores moderation records. Records are append-only.
type Repository interface {
	Create(ctx context.Context, record *models.ModerationRecord) (*models.ModerationRecord, error)
	List(ctx context.Context, ownerID string, limit int) ([]*models.ModerationRecord, error)
}
