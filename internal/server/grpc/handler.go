package grpc

import (
	"context"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/server/auth"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) identity(ctx context.Context) (*auth.Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}

func (s *GRPCServer) fail(ctx context.Context, method string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.InvalidArgument {
		s.logger.Info(ctx, "rejected request", "method", method, "error", err)
	} else {
		s.logger.Error(ctx, "request failed", "method", method, "error", err)
	}
	return st
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.conversation.Turn(ctx, id.UserID, id.DisplayName, req.Message)
	if err != nil {
		return nil, s.fail(ctx, api.MethodSendMessage, err)
	}

	return &api.SendMessageResponse{Exchange: toAPIExchange(result.Exchange)}, nil
}

func (s *GRPCServer) History(ctx context.Context, req *api.HistoryRequest) (*api.HistoryResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	items, total, err := s.conversation.History(ctx, id.UserID, req.Limit, req.Offset)
	if err != nil {
		return nil, s.fail(ctx, api.MethodHistory, err)
	}

	return &api.HistoryResponse{Exchanges: toAPIExchanges(items), Total: total}, nil
}

func (s *GRPCServer) DeleteHistory(ctx context.Context, req *api.DeleteHistoryRequest) (*api.DeleteHistoryResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.conversation.DeleteHistory(ctx, id.UserID, req.ExchangeIDs)
	if err != nil {
		return nil, s.fail(ctx, api.MethodDeleteHistory, err)
	}

	s.logger.Info(ctx, "history cleared", "user_id", id.UserID, "count", n)
	return &api.DeleteHistoryResponse{Deleted: n}, nil
}

func (s *GRPCServer) AdminListExchanges(ctx context.Context, req *api.AdminListExchangesRequest) (*api.AdminListExchangesResponse, error) {
	vis := models.ParseVisibility(req.Visibility)
	page, err := s.admin.ListExchanges(ctx, req.OwnerID, vis, req.Limit, req.Offset)
	if err != nil {
		return nil, s.fail(ctx, api.MethodAdminListExchanges, err)
	}

	return &api.AdminListExchangesResponse{
		Exchanges: toAPIExchanges(page.Exchanges),
		Total:     page.Total,
		Active:    page.Counts.Active,
		Deleted:   page.Counts.Deleted,
	}, nil
}

func (s *GRPCServer) AdminDeleteExchanges(ctx context.Context, req *api.AdminDeleteExchangesRequest) (*api.AdminDeleteExchangesResponse, error) {
	n, err := s.admin.DeleteExchanges(ctx, req.OwnerID, req.Permanent)
	if err != nil {
		return nil, s.fail(ctx, api.MethodAdminDeleteExchanges, err)
	}
	return &api.AdminDeleteExchangesResponse{Deleted: n}, nil
}

func (s *GRPCServer) AdminSummary(ctx context.Context, req *api.AdminSummaryRequest) (*api.AdminSummaryResponse, error) {
	summary, err := s.admin.Summary(ctx, req.OwnerID, req.DisplayName)
	if err != nil {
		return nil, s.fail(ctx, api.MethodAdminSummary, err)
	}
	return &api.AdminSummaryResponse{
		Summary:      summary.Text,
		MessageCount: summary.MessageCount,
		GeneratedAt:  summary.GeneratedAt,
	}, nil
}

func (s *GRPCServer) AdminListModeration(ctx context.Context, req *api.AdminListModerationRequest) (*api.AdminListModerationResponse, error) {
	records, err := s.admin.ListModeration(ctx, req.OwnerID, req.Limit)
	if err != nil {
		return nil, s.fail(ctx, api.MethodAdminListModeration, err)
	}

	out := make([]api.ModerationRecord, 0, len(records))
	for _, r := range records {
		out = append(out, api.ModerationRecord{
			ID:         r.ID,
			OwnerID:    r.OwnerID,
			ExchangeID: r.ExchangeID,
			Message:    r.Message,
			Response:   r.Response,
			Reason:     r.Reason,
			CreatedAt:  r.CreatedAt,
		})
	}
	return &api.AdminListModerationResponse{Records: out}, nil
}

func (s *GRPCServer) AdminReconcile(ctx context.Context, req *api.AdminReconcileRequest) (*api.AdminReconcileResponse, error) {
	report, err := s.admin.Reconcile(ctx)
	if err != nil {
		return nil, s.fail(ctx, api.MethodAdminReconcile, err)
	}
	return &api.AdminReconcileResponse{
		Drained:   report.Drained,
		Failed:    report.Failed,
		Removed:   report.Removed,
		Reindexed: report.Reindexed,
	}, nil
}

func toAPIExchange(e *models.Exchange) api.Exchange {
	return api.Exchange{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Message:   e.Message,
		Response:  e.Response,
		Deleted:   e.Deleted,
		CreatedAt: e.CreatedAt,
	}
}

func toAPIExchanges(items []*models.Exchange) []api.Exchange {
	out := make([]api.Exchange, 0, len(items))
	for _, e := range items {
		out = append(out, toAPIExchange(e))
	}
	return out
}
