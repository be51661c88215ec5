package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const EscrowServiceName = "paysplit.v1.EscrowService"

const (
	EscrowServiceCreateEscrowProcedure  = "/paysplit.v1.EscrowService/CreateEscrow"
	EscrowServiceFundEscrowProcedure    = "/paysplit.v1.EscrowService/FundEscrow"
	EscrowServiceGetEscrowProcedure     = "/paysplit.v1.EscrowService/GetEscrow"
	EscrowServiceListMyEscrowsProcedure = "/paysplit.v1.EscrowService/ListMyEscrows"
	EscrowServiceReleaseEscrowProcedure = "/paysplit.v1.EscrowService/ReleaseEscrow"
	EscrowServiceRefundEscrowProcedure  = "/paysplit.v1.EscrowService/RefundEscrow"
	EscrowServiceDisputeEscrowProcedure = "/paysplit.v1.EscrowService/DisputeEscrow"
	EscrowServiceResolveEscrowProcedure = "/paysplit.v1.EscrowService/ResolveEscrow"
	EscrowServiceGetSettlementProcedure = "/paysplit.v1.EscrowService/GetSettlement"
)

// EscrowServiceHandler is implemented by the escrow service.
type EscrowServiceHandler interface {
	CreateEscrow(context.Context, *connect.Request[CreateEscrowRequest]) (*connect.Response[CreateEscrowResponse], error)
	FundEscrow(context.Context, *connect.Request[FundEscrowRequest]) (*connect.Response[FundEscrowResponse], error)
	GetEscrow(context.Context, *connect.Request[GetEscrowRequest]) (*connect.Response[GetEscrowResponse], error)
	ListMyEscrows(context.Context, *connect.Request[ListMyEscrowsRequest]) (*connect.Response[ListMyEscrowsResponse], error)
	ReleaseEscrow(context.Context, *connect.Request[ReleaseEscrowRequest]) (*connect.Response[ReleaseEscrowResponse], error)
	RefundEscrow(context.Context, *connect.Request[RefundEscrowRequest]) (*connect.Response[RefundEscrowResponse], error)
	DisputeEscrow(context.Context, *connect.Request[DisputeEscrowRequest]) (*connect.Response[DisputeEscrowResponse], error)
	ResolveEscrow(context.Context, *connect.Request[ResolveEscrowRequest]) (*connect.Response[ResolveEscrowResponse], error)
	GetSettlement(context.Context, *connect.Request[GetSettlementRequest]) (*connect.Response[GetSettlementResponse], error)
}

// NewEscrowServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewEscrowServiceHandler(svc EscrowServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	createEscrow := connect.NewUnaryHandler(EscrowServiceCreateEscrowProcedure, svc.CreateEscrow, opts...)
	fundEscrow := connect.NewUnaryHandler(EscrowServiceFundEscrowProcedure, svc.FundEscrow, opts...)
	getEscrow := connect.NewUnaryHandler(EscrowServiceGetEscrowProcedure, svc.GetEscrow, opts...)
	listMyEscrows := connect.NewUnaryHandler(EscrowServiceListMyEscrowsProcedure, svc.ListMyEscrows, opts...)
	releaseEscrow := connect.NewUnaryHandler(EscrowServiceReleaseEscrowProcedure, svc.ReleaseEscrow, opts...)
	refundEscrow := connect.NewUnaryHandler(EscrowServiceRefundEscrowProcedure, svc.RefundEscrow, opts...)
	disputeEscrow := connect.NewUnaryHandler(EscrowServiceDisputeEscrowProcedure, svc.DisputeEscrow, opts...)
	resolveEscrow := connect.NewUnaryHandler(EscrowServiceResolveEscrowProcedure, svc.ResolveEscrow, opts...)
	getSettlement := connect.NewUnaryHandler(EscrowServiceGetSettlementProcedure, svc.GetSettlement, opts...)
	return "/" + EscrowServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EscrowServiceCreateEscrowProcedure:
			createEscrow.ServeHTTP(w, r)
		case EscrowServiceFundEscrowProcedure:
			fundEscrow.ServeHTTP(w, r)
		case EscrowServiceGetEscrowProcedure:
			getEscrow.ServeHTTP(w, r)
		case EscrowServiceListMyEscrowsProcedure:
			listMyEscrows.ServeHTTP(w, r)
		case EscrowServiceReleaseEscrowProcedure:
			releaseEscrow.ServeHTTP(w, r)
		case EscrowServiceRefundEscrowProcedure:
			refundEscrow.ServeHTTP(w, r)
		case EscrowServiceDisputeEscrowProcedure:
			disputeEscrow.ServeHTTP(w, r)
		case EscrowServiceResolveEscrowProcedure:
			resolveEscrow.ServeHTTP(w, r)
		case EscrowServiceGetSettlementProcedure:
			getSettlement.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// EscrowServiceClient calls a remote EscrowService.
type EscrowServiceClient struct {
	createEscrow  *connect.Client[CreateEscrowRequest, CreateEscrowResponse]
	fundEscrow    *connect.Client[FundEscrowRequest, FundEscrowResponse]
	getEscrow     *connect.Client[GetEscrowRequest, GetEscrowResponse]
	listMyEscrows *connect.Client[ListMyEscrowsRequest, ListMyEscrowsResponse]
	releaseEscrow *connect.Client[ReleaseEscrowRequest, ReleaseEscrowResponse]
	refundEscrow  *connect.Client[RefundEscrowRequest, RefundEscrowResponse]
	disputeEscrow *connect.Client[DisputeEscrowRequest, DisputeEscrowResponse]
	resolveEscrow *connect.Client[ResolveEscrowRequest, ResolveEscrowResponse]
	getSettlement *connect.Client[GetSettlementRequest, GetSettlementResponse]
}

// NewEscrowServiceClient builds a client for the service at baseURL.
func NewEscrowServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EscrowServiceClient {
	opts = clientOptions(opts)
	return &EscrowServiceClient{
		createEscrow:  connect.NewClient[CreateEscrowRequest, CreateEscrowResponse](httpClient, baseURL+EscrowServiceCreateEscrowProcedure, opts...),
		fundEscrow:    connect.NewClient[FundEscrowRequest, FundEscrowResponse](httpClient, baseURL+EscrowServiceFundEscrowProcedure, opts...),
		getEscrow:     connect.NewClient[GetEscrowRequest, GetEscrowResponse](httpClient, baseURL+EscrowServiceGetEscrowProcedure, opts...),
		listMyEscrows: connect.NewClient[ListMyEscrowsRequest, ListMyEscrowsResponse](httpClient, baseURL+EscrowServiceListMyEscrowsProcedure, opts...),
		releaseEscrow: connect.NewClient[ReleaseEscrowRequest, ReleaseEscrowResponse](httpClient, baseURL+EscrowServiceReleaseEscrowProcedure, opts...),
		refundEscrow:  connect.NewClient[RefundEscrowRequest, RefundEscrowResponse](httpClient, baseURL+EscrowServiceRefundEscrowProcedure, opts...),
		disputeEscrow: connect.NewClient[DisputeEscrowRequest, DisputeEscrowResponse](httpClient, baseURL+EscrowServiceDisputeEscrowProcedure, opts...),
		resolveEscrow: connect.NewClient[ResolveEscrowRequest, ResolveEscrowResponse](httpClient, baseURL+EscrowServiceResolveEscrowProcedure, opts...),
		getSettlement: connect.NewClient[GetSettlementRequest, GetSettlementResponse](httpClient, baseURL+EscrowServiceGetSettlementProcedure, opts...),
	}
}

func (c *EscrowServiceClient) CreateEscrow(ctx context.Context, req *connect.Request[CreateEscrowRequest]) (*connect.Response[CreateEscrowResponse], error) {
	return c.createEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) FundEscrow(ctx context.Context, req *connect.Request[FundEscrowRequest]) (*connect.Response[FundEscrowResponse], error) {
	return c.fundEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) GetEscrow(ctx context.Context, req *connect.Request[GetEscrowRequest]) (*connect.Response[GetEscrowResponse], error) {
	return c.getEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) ListMyEscrows(ctx context.Context, req *connect.Request[ListMyEscrowsRequest]) (*connect.Response[ListMyEscrowsResponse], error) {
	return c.listMyEscrows.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) ReleaseEscrow(ctx context.Context, req *connect.Request[ReleaseEscrowRequest]) (*connect.Response[ReleaseEscrowResponse], error) {
	return c.releaseEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) RefundEscrow(ctx context.Context, req *connect.Request[RefundEscrowRequest]) (*connect.Response[RefundEscrowResponse], error) {
	return c.refundEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) DisputeEscrow(ctx context.Context, req *connect.Request[DisputeEscrowRequest]) (*connect.Response[DisputeEscrowResponse], error) {
	return c.disputeEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) ResolveEscrow(ctx context.Context, req *connect.Request[ResolveEscrowRequest]) (*connect.Response[ResolveEscrowResponse], error) {
	return c.resolveEscrow.CallUnary(ctx, req)
}

func (c *EscrowServiceClient) GetSettlement(ctx context.Context, req *connect.Request[GetSettlementRequest]) (*connect.Response[GetSettlementResponse], error) {
	return c.getSettlement.CallUnary(ctx, req)
}
