package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
)

const ServiceName = "companion.v1.Companion"

const (
	MethodPing                 = "Ping"
	MethodSendMessage          = "SendMessage"
	MethodHistory              = "History"
	MethodDeleteHistory        = "DeleteHistory"
	MethodAdminListExchanges   = "AdminListExchanges"
	MethodAdminDeleteExchanges = "AdminDeleteExchanges"
	MethodAdminSummary         = "AdminSummary"
	MethodAdminListModeration  = "AdminListModeration"
	MethodAdminReconcile       = "AdminReconcile"
)

// FullMethod returns "/companion.v1.Companion/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// IsPublic reports whether fullMethod may be called without a token.
func IsPublic(fullMethod string) bool {
	return fullMethod == FullMethod(MethodPing)
}

// IsAdmin reports whether fullMethod requires the admin claim.
func IsAdmin(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, FullMethod("Admin"))
}

// CompanionServer is implemented by the server.
type CompanionServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	DeleteHistory(context.Context, *DeleteHistoryRequest) (*DeleteHistoryResponse, error)
	AdminListExchanges(context.Context, *AdminListExchangesRequest) (*AdminListExchangesResponse, error)
	AdminDeleteExchanges(context.Context, *AdminDeleteExchangesRequest) (*AdminDeleteExchangesResponse, error)
	AdminSummary(context.Context, *AdminSummaryRequest) (*AdminSummaryResponse, error)
	AdminListModeration(context.Context, *AdminListModerationRequest) (*AdminListModerationResponse, error)
	AdminReconcile(context.Context, *AdminReconcileRequest) (*AdminReconcileResponse, error)
}

func unary[Req, Resp any](method string, call func(CompanionServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CompanionServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Companion service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompanionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, CompanionServer.Ping),
		unary(MethodSendMessage, CompanionServer.SendMessage),
		unary(MethodHistory, CompanionServer.History),
		unary(MethodDeleteHistory, CompanionServer.DeleteHistory),
		unary(MethodAdminListExchanges, CompanionServer.AdminListExchanges),
		unary(MethodAdminDeleteExchanges, CompanionServer.AdminDeleteExchanges),
		unary(MethodAdminSummary, CompanionServer.AdminSummary),
		unary(MethodAdminListModeration, CompanionServer.AdminListModeration),
		unary(MethodAdminReconcile, CompanionServer.AdminReconcile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "companion/v1",
}

func RegisterCompanionServer(s grpc.ServiceRegistrar, srv CompanionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CompanionClient calls the service over cc using the JSON codec.
type CompanionClient struct {
	cc grpc.ClientConnInterface
}

func NewCompanionClient(cc grpc.ClientConnInterface) *CompanionClient {
	return &CompanionClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CompanionClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *CompanionClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, MethodSendMessage, in, opts)
}

func (c *CompanionClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c.cc, MethodHistory, in, opts)
}

func (c *CompanionClient) DeleteHistory(ctx context.Context, in *DeleteHistoryRequest, opts ...grpc.CallOption) (*DeleteHistoryResponse, error) {
	return invoke[DeleteHistoryResponse](ctx, c.cc, MethodDeleteHistory, in, opts)
}

func (c *CompanionClient) AdminListExchanges(ctx context.Context, in *AdminListExchangesRequest, opts ...grpc.CallOption) (*AdminListExchangesResponse, error) {
	return invoke[AdminListExchangesResponse](ctx, c.cc, MethodAdminListExchanges, in, opts)
}

func (c *CompanionClient) AdminDeleteExchanges(ctx context.Context, in *AdminDeleteExchangesRequest, opts ...grpc.CallOption) (*AdminDeleteExchangesResponse, error) {
	return invoke[AdminDeleteExchangesResponse](ctx, c.cc, MethodAdminDeleteExchanges, in, opts)
}

func (c *CompanionClient) AdminSummary(ctx context.Context, in *AdminSummaryRequest, opts ...grpc.CallOption) (*AdminSummaryResponse, error) {
	return invoke[AdminSummaryResponse](ctx, c.cc, MethodAdminSummary, in, opts)
}

func (c *CompanionClient) AdminListModeration(ctx context.Context, in *AdminListModerationRequest, opts ...grpc.CallOption) (*AdminListModerationResponse, error) {
	return invoke[AdminListModerationResponse](ctx, c.cc, MethodAdminListModeration, in, opts)
}

func (c *CompanionClient) AdminReconcile(ctx context.Context, in *AdminReconcileRequest, opts ...grpc.CallOption) (*AdminReconcileResponse, error) {
	return invoke[AdminReconcileResponse](ctx, c.cc, MethodAdminReconcile, in, opts)
}
