package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *api.CompanionClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient dials endpointURL lazily; the first call establishes the
// connection. Extra dial options are appended after the defaults.
func NewGRPCClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewCompanionClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Send(ctx context.Context, message string) (*api.Exchange, error) {
	resp, err := s.client.SendMessage(ctx, &api.SendMessageRequest{Message: message})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Exchange, nil
}

func (s *GRPCClient) History(ctx context.Context, limit, offset int) (*api.HistoryResponse, error) {
	resp, err := s.client.History(ctx, &api.HistoryRequest{Limit: limit, Offset: offset})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Clear(ctx context.Context, exchangeIDs []string) (int, error) {
	resp, err := s.client.DeleteHistory(ctx, &api.DeleteHistoryRequest{ExchangeIDs: exchangeIDs})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.Deleted, nil
}

func (s *GRPCClient) AdminList(ctx context.Context, req *api.AdminListExchangesRequest) (*api.AdminListExchangesResponse, error) {
	resp, err := s.client.AdminListExchanges(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) AdminDelete(ctx context.Context, ownerID string, permanent bool) (int, error) {
	resp, err := s.client.AdminDeleteExchanges(ctx, &api.AdminDeleteExchangesRequest{OwnerID: ownerID, Permanent: permanent})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.Deleted, nil
}

func (s *GRPCClient) AdminSummary(ctx context.Context, ownerID, displayName string) (*api.AdminSummaryResponse, error) {
	resp, err := s.client.AdminSummary(ctx, &api.AdminSummaryRequest{OwnerID: ownerID, DisplayName: displayName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) AdminModeration(ctx context.Context, ownerID string, limit int) ([]api.ModerationRecord, error) {
	resp, err := s.client.AdminListModeration(ctx, &api.AdminListModerationRequest{OwnerID: ownerID, Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Records, nil
}

func (s *GRPCClient) AdminReconcile(ctx context.Context) (*api.AdminReconcileResponse, error) {
	resp, err := s.client.AdminReconcile(ctx, &api.AdminReconcileRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
