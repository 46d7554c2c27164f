package mpv

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeMPV is a minimal mpv JSON-IPC server.
type fakeMPV struct {
	path string
	ln   net.Listener

	mu        sync.Mutex
	paused    bool
	timePos   float64
	seekDelay time.Duration
	failSeek  bool
	commands  []string
	observed  []string
	observers []net.Conn
	conns     []net.Conn
}

func newFakeMPV(t *testing.T, opts ...func(*fakeMPV)) *fakeMPV {
	t.Helper()

	// Unix socket paths are length limited, keep it short.
	dir, err := os.MkdirTemp("", "mpv")
	require.NoError(t, err)
	path := filepath.Join(dir, "s.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	f := &fakeMPV{path: path, ln: ln, paused: true, seekDelay: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(f)
	}
	go f.serve()

	t.Cleanup(func() {
		_ = ln.Close()
		f.mu.Lock()
		for _, c := range f.conns {
			_ = c.Close()
		}
		f.mu.Unlock()
		_ = os.RemoveAll(dir)
	})
	return f
}

func (f *fakeMPV) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *fakeMPV) handle(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var cmd ipcCommand
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil || len(cmd.Command) == 0 {
			continue
		}
		name, _ := cmd.Command[0].(string)

		f.mu.Lock()
		f.commands = append(f.commands, name)
		f.mu.Unlock()

		switch name {
		case "get_property":
			prop, _ := cmd.Command[1].(string)
			f.mu.Lock()
			switch prop {
			case "pause":
				f.reply(conn, cmd.RequestID, f.paused, "success")
			case "time-pos":
				f.reply(conn, cmd.RequestID, f.timePos, "success")
			default:
				f.reply(conn, cmd.RequestID, nil, "property unavailable")
			}
			f.mu.Unlock()
		case "set_property":
			prop, _ := cmd.Command[1].(string)
			f.mu.Lock()
			if prop == "pause" {
				f.paused, _ = cmd.Command[2].(bool)
			}
			f.reply(conn, cmd.RequestID, nil, "success")
			f.emitLocked(map[string]any{"event": "property-change", "id": 1, "name": "pause", "data": f.paused})
			f.mu.Unlock()
		case "seek":
			f.mu.Lock()
			if f.failSeek {
				f.reply(conn, cmd.RequestID, nil, "invalid parameter")
				f.mu.Unlock()
				continue
			}
			f.timePos, _ = cmd.Command[1].(float64)
			f.reply(conn, cmd.RequestID, nil, "success")
			delay := f.seekDelay
			f.mu.Unlock()
			go func() {
				time.Sleep(delay)
				f.mu.Lock()
				defer f.mu.Unlock()
				f.emitLocked(map[string]any{"event": "playback-restart"})
			}()
		case "observe_property":
			prop, _ := cmd.Command[2].(string)
			f.mu.Lock()
			f.observed = append(f.observed, prop)
			if len(f.observers) == 0 || f.observers[len(f.observers)-1] != conn {
				f.observers = append(f.observers, conn)
			}
			f.reply(conn, cmd.RequestID, nil, "success")
			f.mu.Unlock()
		default:
			f.mu.Lock()
			f.reply(conn, cmd.RequestID, nil, "invalid command")
			f.mu.Unlock()
		}
	}
}

// reply must be called with f.mu held.
func (f *fakeMPV) reply(conn net.Conn, id int64, data any, status string) {
	payload, _ := json.Marshal(map[string]any{"data": data, "error": status, "request_id": id})
	_, _ = conn.Write(append(payload, '\n'))
}

// emitLocked must be called with f.mu held.
func (f *fakeMPV) emitLocked(event map[string]any) {
	payload, _ := json.Marshal(event)
	for _, c := range f.observers {
		_, _ = c.Write(append(payload, '\n'))
	}
}

func (f *fakeMPV) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeMPV) observedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.observed...)
}

func (f *fakeMPV) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}
