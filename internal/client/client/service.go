package client

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/api"
)

// Client is the contract the CLI talks to. GRPCClient implements it.
type Client interface {
	Ping(ctx context.Context) error
	Send(ctx context.Context, message string) (*api.Exchange, error)
	History(ctx context.Context, limit, offset int) (*api.HistoryResponse, error)
	Clear(ctx context.Context, exchangeIDs []string) (int, error)

	AdminList(ctx context.Context, req *api.AdminListExchangesRequest) (*api.AdminListExchangesResponse, error)
	AdminDelete(ctx context.Context, ownerID string, permanent bool) (int, error)
	AdminSummary(ctx context.Context, ownerID, displayName string) (*api.AdminSummaryResponse, error)
	AdminModeration(ctx context.Context, ownerID string, limit int) ([]api.ModerationRecord, error)
	AdminReconcile(ctx context.Context) (*api.AdminReconcileResponse, error)

	Close() error
}
