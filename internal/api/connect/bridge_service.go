// Package connect provides the Connect RPC bridge service.
package connect

import (
	"context"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/app/loop"
	"github.com/osa030/mediasync/internal/app/notification"
	"github.com/osa030/mediasync/internal/domain/message"
)

// Dispatcher applies controller messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *message.Message) error
	Status(ctx context.Context) (*dispatch.Status, error)
}

// Notifications manages outbound subscriptions.
type Notifications interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(subscriptionID string)
	NextSequenceNo() uint64
}

// BridgeService implements the BridgeService RPC.
type BridgeService struct {
	dispatcher    Dispatcher
	notifications Notifications
	done          <-chan struct{}
}

// NewBridgeService creates a new BridgeService. Subscriptions end when done
// is closed.
func NewBridgeService(dispatcher Dispatcher, notifications Notifications, done <-chan struct{}) *BridgeService {
	return &BridgeService{
		dispatcher:    dispatcher,
		notifications: notifications,
		done:          done,
	}
}

// Ensure BridgeService implements the interface.
var _ BridgeServiceHandler = (*BridgeService)(nil)

// Dispatch applies one tagged message.
func (s *BridgeService) Dispatch(
	ctx context.Context,
	req *connect.Request[message.Message],
) (*connect.Response[DispatchResponse], error) {
	if err := s.dispatcher.Dispatch(ctx, req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DispatchResponse{Tag: req.Msg.Tag}), nil
}

// GetStatus returns the restart state and element snapshots.
func (s *BridgeService) GetStatus(
	ctx context.Context,
	req *connect.Request[GetStatusRequest],
) (*connect.Response[dispatch.Status], error) {
	status, err := s.dispatcher.Status(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(status), nil
}

// Subscribe streams the current status followed by every outbound message.
// The subscription is registered before the status is read, so nothing
// broadcast after the snapshot is missed. Messages broadcast while the
// status is read are held back until it has been sent.
func (s *BridgeService) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[message.Message],
) error {
	adapter := &messageStreamAdapter{stream: stream}

	adapter.mu.Lock()
	subscriptionID := s.notifications.Subscribe(adapter)
	err := s.sendStatus(ctx, stream)
	adapter.mu.Unlock()

	defer func() {
		adapter.close()
		s.notifications.Unsubscribe(subscriptionID)
		zlog.Debug().Msgf("connect: subscriber %s left", subscriptionID)
	}()
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("connect: subscriber %s joined", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

func (s *BridgeService) sendStatus(ctx context.Context, stream *connect.ServerStream[message.Message]) error {
	status, err := s.dispatcher.Status(ctx)
	if err != nil {
		return toConnectError(err)
	}
	initial, err := message.New(message.TagStatus, status)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	initial.Seq = s.notifications.NextSequenceNo()
	return stream.Send(initial)
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, dispatch.ErrInvalidPayload):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, loop.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// errStreamClosed is returned by sends racing the end of a subscription.
var errStreamClosed = errors.New("subscription stream closed")

// messageStreamAdapter adapts connect.ServerStream to notification.Stream.
// A send that outlives its broadcast timeout may overlap the next one, so
// sends are serialized. The stream must not be used once the handler has
// returned.
type messageStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[message.Message]
	closed bool
}

func (a *messageStreamAdapter) Send(msg *message.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(msg)
}

func (a *messageStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
