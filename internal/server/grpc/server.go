// Package grpc exposes the conversation and admin services over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/dmitrijs2005/companion/internal/server/services"
	"google.golang.org/grpc"
)

// Conversation is the user-facing service. *services.ConversationService
// implements it.
type Conversation interface {
	Turn(ctx context.Context, ownerID, displayName, message string) (*services.TurnResult, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]*models.Exchange, int64, error)
	DeleteHistory(ctx context.Context, ownerID string, ids []string) (int, error)
}

// Admin is the oversight service. *services.AdminService implements it.
type Admin interface {
	ListExchanges(ctx context.Context, ownerID string, visibility models.Visibility, limit, offset int) (*services.ExchangePage, error)
	DeleteExchanges(ctx context.Context, ownerID string, permanent bool) (int, error)
	Summary(ctx context.Context, ownerID, displayName string) (*services.Summary, error)
	ListModeration(ctx context.Context, ownerID string, limit int) ([]*models.ModerationRecord, error)
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
}

type GRPCServer struct {
	address      string
	conversation Conversation
	admin        Admin
	logger       logging.Logger
	jwtSecret    []byte
}

func NewGRPCServer(a string, l logging.Logger, conversation Conversation, admin Admin, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		conversation: conversation,
		admin:        admin,
		jwtSecret:    []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.accessTokenInterceptor))
	api.RegisterCompanionServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
