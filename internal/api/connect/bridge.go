package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/domain/message"
)

const (
	// BridgeServiceName is the fully-qualified name of the bridge service.
	BridgeServiceName = "mediasync.v1.BridgeService"

	BridgeServiceDispatchProcedure  = "/mediasync.v1.BridgeService/Dispatch"
	BridgeServiceGetStatusProcedure = "/mediasync.v1.BridgeService/GetStatus"
	BridgeServiceSubscribeProcedure = "/mediasync.v1.BridgeService/Subscribe"
)

// DispatchResponse is the result of a Dispatch call.
type DispatchResponse struct {
	Tag string `json:"tag"`
}

// GetStatusRequest is the (empty) request of GetStatus.
type GetStatusRequest struct{}

// SubscribeRequest is the (empty) request of Subscribe.
type SubscribeRequest struct{}

// BridgeServiceHandler is implemented by the bridge service.
type BridgeServiceHandler interface {
	Dispatch(context.Context, *connect.Request[message.Message]) (*connect.Response[DispatchResponse], error)
	GetStatus(context.Context, *connect.Request[GetStatusRequest]) (*connect.Response[dispatch.Status], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest], *connect.ServerStream[message.Message]) error
}

// NewBridgeServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewBridgeServiceHandler(svc BridgeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	dispatchHandler := connect.NewUnaryHandler(BridgeServiceDispatchProcedure, svc.Dispatch, opts...)
	getStatusHandler := connect.NewUnaryHandler(BridgeServiceGetStatusProcedure, svc.GetStatus, opts...)
	subscribeHandler := connect.NewServerStreamHandler(BridgeServiceSubscribeProcedure, svc.Subscribe, opts...)

	return "/" + BridgeServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case BridgeServiceDispatchProcedure:
			dispatchHandler.ServeHTTP(w, r)
		case BridgeServiceGetStatusProcedure:
			getStatusHandler.ServeHTTP(w, r)
		case BridgeServiceSubscribeProcedure:
			subscribeHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// BridgeServiceClient calls the bridge service.
type BridgeServiceClient struct {
	dispatch  *connect.Client[message.Message, DispatchResponse]
	getStatus *connect.Client[GetStatusRequest, dispatch.Status]
	subscribe *connect.Client[SubscribeRequest, message.Message]
}

// NewBridgeServiceClient creates a client for the service at baseURL.
func NewBridgeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *BridgeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &BridgeServiceClient{
		dispatch:  connect.NewClient[message.Message, DispatchResponse](httpClient, baseURL+BridgeServiceDispatchProcedure, opts...),
		getStatus: connect.NewClient[GetStatusRequest, dispatch.Status](httpClient, baseURL+BridgeServiceGetStatusProcedure, opts...),
		subscribe: connect.NewClient[SubscribeRequest, message.Message](httpClient, baseURL+BridgeServiceSubscribeProcedure, opts...),
	}
}

// Dispatch calls mediasync.v1.BridgeService.Dispatch.
func (c *BridgeServiceClient) Dispatch(ctx context.Context, req *connect.Request[message.Message]) (*connect.Response[DispatchResponse], error) {
	return c.dispatch.CallUnary(ctx, req)
}

// GetStatus calls mediasync.v1.BridgeService.GetStatus.
func (c *BridgeServiceClient) GetStatus(ctx context.Context, req *connect.Request[GetStatusRequest]) (*connect.Response[dispatch.Status], error) {
	return c.getStatus.CallUnary(ctx, req)
}

// Subscribe calls mediasync.v1.BridgeService.Subscribe.
func (c *BridgeServiceClient) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[message.Message], error) {
	return c.subscribe.CallServerStream(ctx, req)
}
