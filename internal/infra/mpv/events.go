package mpv

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Event is an mpv event or observed property change.
type Event struct {
	Name     string // "property-change", "playback-restart", "seek", ...
	Property string // Set for property-change
	Data     any
}

// EventCallback receives events on the listener goroutine.
type EventCallback func(Event)

// observedProperties are registered on the listener connection. Seek
// completion comes from the playback-restart event, not a property.
var observedProperties = []string{"pause", "time-pos"}

// EventListener keeps a connection open to receive mpv events.
type EventListener struct {
	socketPath string
	timeout    time.Duration
	callback   EventCallback

	mu        sync.Mutex
	conn      net.Conn
	listening bool
	done      chan struct{}
}

// NewEventListener creates a new event listener for the given socket.
func NewEventListener(socketPath string, timeout time.Duration, callback EventCallback) *EventListener {
	return &EventListener{
		socketPath: socketPath,
		timeout:    timeout,
		callback:   callback,
		done:       make(chan struct{}),
	}
}

// Start connects, observes properties and starts the read loop.
// Property observers are per connection, so they are registered on the
// same connection the loop reads from.
func (el *EventListener) Start() error {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.listening {
		return nil
	}

	conn, err := net.DialTimeout("unix", el.socketPath, el.timeout)
	if err != nil {
		return errors.Wrap(err, "event listener connect")
	}

	for i, name := range observedProperties {
		cmd := ipcCommand{Command: []any{"observe_property", i + 1, name}}
		if err := writeCommand(conn, cmd); err != nil {
			_ = conn.Close()
			return errors.Wrapf(err, "observe %s", name)
		}
	}

	el.conn = conn
	el.listening = true
	go el.readLoop(conn)

	zlog.Info().Msgf("mpv event listener started on %s", el.socketPath)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (el *EventListener) Stop() {
	el.mu.Lock()
	if !el.listening {
		el.mu.Unlock()
		return
	}
	el.listening = false
	_ = el.conn.Close()
	el.mu.Unlock()

	<-el.done
}

// Done returns a channel that is closed when the read loop exits.
func (el *EventListener) Done() <-chan struct{} {
	return el.done
}

func (el *EventListener) readLoop(conn net.Conn) {
	defer close(el.done)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		el.processLine(scanner.Bytes())
	}

	el.mu.Lock()
	stopped := !el.listening
	el.listening = false
	el.mu.Unlock()

	if !stopped {
		zlog.Warn().Msgf("mpv event listener disconnected: socket=%s err=%v", el.socketPath, scanner.Err())
	}
}

// processLine parses and dispatches a single mpv event line.
func (el *EventListener) processLine(line []byte) {
	var resp ipcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return
	}
	if resp.Event == "" {
		// Reply to observe_property.
		if resp.Error != "" && resp.Error != "success" {
			zlog.Warn().Msgf("mpv event listener: command rejected: %s", resp.Error)
		}
		return
	}
	if el.callback != nil {
		el.callback(Event{
			Name:     resp.Event,
			Property: resp.Name,
			Data:     resp.Data,
		})
	}
}
