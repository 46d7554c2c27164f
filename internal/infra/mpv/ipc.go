// Package mpv drives an mpv player through its JSON-IPC socket.
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

// ipcCommand is the JSON structure sent to mpv's IPC socket.
type ipcCommand struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

// ipcResponse is the JSON structure received from mpv's IPC socket.
// Event lines carry Event instead of Error.
type ipcResponse struct {
	Data      any    `json:"data"`
	Error     string `json:"error"`
	RequestID int64  `json:"request_id"`
	Event     string `json:"event"`
	Name      string `json:"name"`
}

// ErrCommand marks errors reported by mpv itself.
var ErrCommand = errors.New("mpv command failed")

// ClientConfig holds IPC client configuration.
type ClientConfig struct {
	SocketPath string
	Timeout    time.Duration // Per-attempt read/write deadline
	MaxRetries int
	RetryDelay time.Duration
}

// Client sends one-shot commands to mpv. Each command uses its own
// connection so replies are never interleaved with events.
type Client struct {
	mu     sync.Mutex
	config ClientConfig
	nextID int64
}

// NewClient creates a new IPC client.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &Client{config: config}
}

// Command sends a command and returns its data.
// Transient connection errors are retried; errors reported by mpv are not.
func (c *Client) Command(args ...any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.config.RetryDelay)
		}

		c.nextID++
		data, err := c.doCommand(c.nextID, args)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrCommand) {
			return nil, err
		}
		lastErr = err
		zlog.Debug().Msgf("mpv: ipc attempt %d/%d failed: socket=%s err=%v", attempt+1, c.config.MaxRetries, c.config.SocketPath, err)
	}

	return nil, errors.Wrapf(lastErr, "ipc command failed after %d attempts", c.config.MaxRetries)
}

// SetProperty sets an mpv property.
func (c *Client) SetProperty(name string, value any) error {
	_, err := c.Command("set_property", name, value)
	return err
}

// GetBool reads a boolean property.
func (c *Client) GetBool(name string) (bool, error) {
	data, err := c.Command("get_property", name)
	if err != nil {
		return false, err
	}
	v, ok := data.(bool)
	if !ok {
		return false, errors.Newf("property %s: expected bool, got %T", name, data)
	}
	return v, nil
}

// GetFloat reads a numeric property.
func (c *Client) GetFloat(name string) (float64, error) {
	data, err := c.Command("get_property", name)
	if err != nil {
		return 0, err
	}
	v, ok := data.(float64)
	if !ok {
		return 0, errors.Newf("property %s: expected float64, got %T", name, data)
	}
	return v, nil
}

// doCommand performs a single IPC command attempt.
func (c *Client) doCommand(id int64, args []any) (any, error) {
	conn, err := net.DialTimeout("unix", c.config.SocketPath, c.config.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}

	if err := writeCommand(conn, ipcCommand{Command: args, RequestID: id}); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var resp ipcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			return nil, errors.Wrap(err, "unmarshal")
		}
		// Skip events and replies to other requests.
		if resp.Event != "" || resp.RequestID != id {
			continue
		}
		if resp.Error != "" && resp.Error != "success" {
			return nil, errors.Mark(errors.Newf("mpv error: %s", resp.Error), ErrCommand)
		}
		return resp.Data, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return nil, errors.New("read: connection closed before reply")
}

// writeCommand writes one newline-delimited JSON command.
func writeCommand(conn net.Conn, cmd ipcCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}
