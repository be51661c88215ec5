package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const SplitServiceName = "paysplit.v1.SplitService"

const (
	SplitServiceCreateSplitProcedure         = "/paysplit.v1.SplitService/CreateSplit"
	SplitServiceGetSplitProcedure            = "/paysplit.v1.SplitService/GetSplit"
	SplitServiceDeactivateSplitProcedure     = "/paysplit.v1.SplitService/DeactivateSplit"
	SplitServicePreviewDistributionProcedure = "/paysplit.v1.SplitService/PreviewDistribution"
)

// SplitServiceHandler is implemented by the split service.
type SplitServiceHandler interface {
	CreateSplit(context.Context, *connect.Request[CreateSplitRequest]) (*connect.Response[CreateSplitResponse], error)
	GetSplit(context.Context, *connect.Request[GetSplitRequest]) (*connect.Response[GetSplitResponse], error)
	DeactivateSplit(context.Context, *connect.Request[DeactivateSplitRequest]) (*connect.Response[DeactivateSplitResponse], error)
	PreviewDistribution(context.Context, *connect.Request[PreviewDistributionRequest]) (*connect.Response[PreviewDistributionResponse], error)
}

// NewSplitServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewSplitServiceHandler(svc SplitServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	createSplit := connect.NewUnaryHandler(SplitServiceCreateSplitProcedure, svc.CreateSplit, opts...)
	getSplit := connect.NewUnaryHandler(SplitServiceGetSplitProcedure, svc.GetSplit, opts...)
	deactivateSplit := connect.NewUnaryHandler(SplitServiceDeactivateSplitProcedure, svc.DeactivateSplit, opts...)
	previewDistribution := connect.NewUnaryHandler(SplitServicePreviewDistributionProcedure, svc.PreviewDistribution, opts...)
	return "/" + SplitServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SplitServiceCreateSplitProcedure:
			createSplit.ServeHTTP(w, r)
		case SplitServiceGetSplitProcedure:
			getSplit.ServeHTTP(w, r)
		case SplitServiceDeactivateSplitProcedure:
			deactivateSplit.ServeHTTP(w, r)
		case SplitServicePreviewDistributionProcedure:
			previewDistribution.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// SplitServiceClient calls a remote SplitService.
type SplitServiceClient struct {
	createSplit         *connect.Client[CreateSplitRequest, CreateSplitResponse]
	getSplit            *connect.Client[GetSplitRequest, GetSplitResponse]
	deactivateSplit     *connect.Client[DeactivateSplitRequest, DeactivateSplitResponse]
	previewDistribution *connect.Client[PreviewDistributionRequest, PreviewDistributionResponse]
}

// NewSplitServiceClient builds a client for the service at baseURL.
func NewSplitServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SplitServiceClient {
	opts = clientOptions(opts)
	return &SplitServiceClient{
		createSplit:         connect.NewClient[CreateSplitRequest, CreateSplitResponse](httpClient, baseURL+SplitServiceCreateSplitProcedure, opts...),
		getSplit:            connect.NewClient[GetSplitRequest, GetSplitResponse](httpClient, baseURL+SplitServiceGetSplitProcedure, opts...),
		deactivateSplit:     connect.NewClient[DeactivateSplitRequest, DeactivateSplitResponse](httpClient, baseURL+SplitServiceDeactivateSplitProcedure, opts...),
		previewDistribution: connect.NewClient[PreviewDistributionRequest, PreviewDistributionResponse](httpClient, baseURL+SplitServicePreviewDistributionProcedure, opts...),
	}
}

func (c *SplitServiceClient) CreateSplit(ctx context.Context, req *connect.Request[CreateSplitRequest]) (*connect.Response[CreateSplitResponse], error) {
	return c.createSplit.CallUnary(ctx, req)
}

func (c *SplitServiceClient) GetSplit(ctx context.Context, req *connect.Request[GetSplitRequest]) (*connect.Response[GetSplitResponse], error) {
	return c.getSplit.CallUnary(ctx, req)
}

func (c *SplitServiceClient) DeactivateSplit(ctx context.Context, req *connect.Request[DeactivateSplitRequest]) (*connect.Response[DeactivateSplitResponse], error) {
	return c.deactivateSplit.CallUnary(ctx, req)
}

func (c *SplitServiceClient) PreviewDistribution(ctx context.Context, req *connect.Request[PreviewDistributionRequest]) (*connect.Response[PreviewDistributionResponse], error) {
	return c.previewDistribution.CallUnary(ctx, req)
}
