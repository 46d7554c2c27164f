package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/app/notification"
	"github.com/osa030/mediasync/internal/domain/message"
)

// ackingDispatcher acknowledges every message through the notification
// manager, the way the real dispatcher does.
type ackingDispatcher struct {
	notifications *notification.Manager

	mu       sync.Mutex
	received []string
	err      error
	onStatus func()
}

func (d *ackingDispatcher) Dispatch(_ context.Context, msg *message.Message) error {
	d.mu.Lock()
	d.received = append(d.received, msg.Tag)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return err
	}

	ack, _ := message.New(message.TagAck, message.AckData{Tag: msg.Tag})
	d.notifications.Broadcast(ack)
	return nil
}

func (d *ackingDispatcher) Status(context.Context) (*dispatch.Status, error) {
	d.mu.Lock()
	onStatus := d.onStatus
	d.onStatus = nil
	d.mu.Unlock()
	if onStatus != nil {
		onStatus()
	}
	return &dispatch.Status{State: "not_restarting"}, nil
}

func (d *ackingDispatcher) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type harness struct {
	dispatcher    *ackingDispatcher
	notifications *notification.Manager
	server        *httptest.Server
	done          chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	notifications := notification.NewManager(time.Second)
	h := &harness{
		dispatcher:    &ackingDispatcher{notifications: notifications},
		notifications: notifications,
		done:          make(chan struct{}),
	}
	h.server = httptest.NewServer(NewBridge(h.dispatcher, notifications, h.done))

	t.Cleanup(func() {
		close(h.done)
		h.server.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *message.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg message.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func TestBridge_InitialStatusAndAck(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	initial := readMessage(t, conn)
	assert.Equal(t, message.TagStatus, initial.Tag)
	assert.JSONEq(t, `{"state":"not_restarting","restarting":false,"elements":null}`, string(initial.Data))

	require.Eventually(t, func() bool {
		return h.notifications.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"tag":"Play","data":"audio"}`)))

	ack := readMessage(t, conn)
	assert.Equal(t, message.TagAck, ack.Tag)
	assert.JSONEq(t, `{"tag":"Play"}`, string(ack.Data))
}

func TestBridge_KeepsMessagesDuringStatus(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.mu.Lock()
	h.dispatcher.onStatus = func() {
		ack, _ := message.New(message.TagAck, message.AckData{Tag: message.TagSeek})
		h.notifications.Broadcast(ack)
	}
	h.dispatcher.mu.Unlock()

	conn := h.dial(t)

	assert.Equal(t, message.TagStatus, readMessage(t, conn).Tag)
	ack := readMessage(t, conn)
	assert.Equal(t, message.TagAck, ack.Tag)
	assert.JSONEq(t, `{"tag":"Seek"}`, string(ack.Data))
}

func TestBridge_Diagnostics(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		dispatchErr error
		wantMessage string
	}{
		{
			name:        "malformed frame",
			frame:       `{"tag":`,
			wantMessage: "Malformed message",
		},
		{
			name:        "dispatch failure",
			frame:       `{"tag":"Seek","data":"x"}`,
			dispatchErr: errors.New("invalid message payload"),
			wantMessage: "Failed to dispatch Seek",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.dispatcher.setErr(tt.dispatchErr)
			conn := h.dial(t)
			readMessage(t, conn) // initial status

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))

			msg := readMessage(t, conn)
			require.Equal(t, message.TagDiagnostic, msg.Tag)
			var data message.DiagnosticData
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, "error", data.Level)
			assert.Equal(t, tt.wantMessage, data.Message)
		})
	}
}

func TestBridge_UnsubscribesOnDisconnect(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readMessage(t, conn)

	require.Eventually(t, func() bool {
		return h.notifications.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool {
		return h.notifications.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_ClosesOnShutdown(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readMessage(t, conn)

	close(h.done)
	h.done = make(chan struct{}) // keep cleanup from closing twice

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}

func TestClient_SendNonBlocking(t *testing.T) {
	c := &client{
		send:   make(chan *message.Message, 1),
		closed: make(chan struct{}),
	}
	msg := &message.Message{Tag: message.TagAck}

	require.NoError(t, c.Send(msg))
	assert.ErrorIs(t, c.Send(msg), ErrSlowClient)

	close(c.closed)
	assert.ErrorIs(t, c.Send(msg), ErrClientGone)
}
