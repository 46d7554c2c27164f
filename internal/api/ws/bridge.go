// Package ws bridges controller messages over WebSocket.
//
// Each inbound text frame is one tagged message handed to the dispatcher.
// Outbound messages (status, acks, diagnostics) are written back as text
// frames.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/app/notification"
	"github.com/osa030/mediasync/internal/domain/message"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBufferSize = 64
)

var (
	ErrClientGone = errors.New("websocket client gone")
	ErrSlowClient = errors.New("websocket client send buffer full")

	errMarshal = errors.New("marshal outbound message")
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

// Bridge is the HTTP handler that upgrades controller connections.
type Bridge struct {
	dispatcher    Dispatcher
	notifications Notifications
	done          <-chan struct{}
	upgrader      websocket.Upgrader
}

// NewBridge creates a bridge. Open connections are closed when done is closed.
func NewBridge(dispatcher Dispatcher, notifications Notifications, done <-chan struct{}) *Bridge {
	return &Bridge{
		dispatcher:    dispatcher,
		notifications: notifications,
		done:          done,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Debug().Msgf("ws: upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan *message.Message, sendBufferSize),
		closed: make(chan struct{}),
	}

	// Subscribe before the snapshot; anything broadcast meanwhile waits in
	// the send buffer until the status frame has been written.
	subscriptionID := b.notifications.Subscribe(c)
	zlog.Info().Msgf("ws: client %s connected from %s", subscriptionID, r.RemoteAddr)

	ctx := r.Context()
	if status, err := b.dispatcher.Status(ctx); err != nil {
		c.diagnostic("error", "Failed to read status", err)
	} else if initial, err := message.New(message.TagStatus, status); err == nil {
		initial.Seq = b.notifications.NextSequenceNo()
		if err := c.write(initial); err != nil {
			zlog.Debug().Msgf("ws: initial status: %v", err)
		}
	}
	go c.writePump(b.done)

	c.readPump(ctx, b.dispatcher)

	b.notifications.Unsubscribe(subscriptionID)
	close(c.closed)
	zlog.Info().Msgf("ws: client %s disconnected", subscriptionID)
}

// client is one controller connection. It implements notification.Stream.
type client struct {
	conn   *websocket.Conn
	send   chan *message.Message
	closed chan struct{}
}

// Send queues msg without blocking.
func (c *client) Send(msg *message.Message) error {
	select {
	case <-c.closed:
		return ErrClientGone
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrClientGone
	default:
		return ErrSlowClient
	}
}

func (c *client) diagnostic(level, text string, err error) {
	msg, mErr := message.New(message.TagDiagnostic, message.DiagnosticData{
		Level:   level,
		Message: text,
		Context: map[string]any{"error": err.Error()},
	})
	if mErr != nil {
		return
	}
	_ = c.Send(msg)
}

func (c *client) readPump(ctx context.Context, dispatcher Dispatcher) {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Err(err).Msg("ws: read failed")
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			zlog.Warn().Err(err).Msg("ws: malformed message")
			c.diagnostic("error", "Malformed message", err)
			continue
		}
		if err := dispatcher.Dispatch(ctx, &msg); err != nil {
			zlog.Warn().Err(err).Msgf("ws: dispatch %s failed", msg.Tag)
			c.diagnostic("error", "Failed to dispatch "+msg.Tag, err)
		}
	}
}

// write sends msg as one text frame. Only one goroutine may write at a time.
func (c *client) write(msg *message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		zlog.Error().Err(err).Msg("ws: marshal outbound message")
		return errors.Mark(err, errMarshal)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				if errors.Is(err, errMarshal) {
					continue
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		case <-done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
