package mpv

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/domain/media"
)

// Backend is the backend name reported in snapshots.
const Backend = "mpv"

// Scheduler runs event handling on the goroutine that drives the element.
type Scheduler interface {
	Post(fn func()) error
}

// Config holds mpv element configuration.
type Config struct {
	SocketPath string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Element is a media element backed by a running mpv instance.
//
// The paused and seeking flags mirror mpv and are only touched on the
// scheduler's goroutine. A seek counts as settled when mpv reports
// "playback-restart".
type Element struct {
	id        string
	kind      media.Kind
	scheduler Scheduler
	client    *Client
	listener  *EventListener

	paused  bool
	seeking bool
	pending func()

	posMu    sync.Mutex
	position float64
}

// New connects to the mpv socket and starts listening for events.
func New(id string, kind media.Kind, scheduler Scheduler, config Config) (*Element, error) {
	client := NewClient(ClientConfig{
		SocketPath: config.SocketPath,
		Timeout:    config.Timeout,
		MaxRetries: config.MaxRetries,
		RetryDelay: config.RetryDelay,
	})

	paused, err := client.GetBool("pause")
	if err != nil {
		return nil, errors.Wrapf(err, "mpv not reachable at %s", config.SocketPath)
	}

	e := &Element{
		id:        id,
		kind:      kind,
		scheduler: scheduler,
		client:    client,
		paused:    paused,
	}
	if pos, err := client.GetFloat("time-pos"); err == nil {
		e.position = pos
	}

	e.listener = NewEventListener(config.SocketPath, client.config.Timeout, e.onEvent)
	if err := e.listener.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Element) ID() string       { return e.id }
func (e *Element) Kind() media.Kind { return e.kind }
func (e *Element) IsSeeking() bool  { return e.seeking }
func (e *Element) IsPaused() bool   { return e.paused }

// Play unpauses mpv.
func (e *Element) Play() error {
	if err := e.client.SetProperty("pause", false); err != nil {
		return errors.Wrapf(err, "play %s", e.id)
	}
	e.paused = false
	return nil
}

// Pause pauses mpv.
func (e *Element) Pause() error {
	if err := e.client.SetProperty("pause", true); err != nil {
		return errors.Wrapf(err, "pause %s", e.id)
	}
	e.paused = true
	return nil
}

// SetPosition starts an exact absolute seek.
func (e *Element) SetPosition(seconds float64) error {
	if _, err := e.client.Command("seek", seconds, "absolute+exact"); err != nil {
		return errors.Wrapf(err, "seek %s", e.id)
	}
	e.seeking = true
	e.setPosition(seconds)
	return nil
}

// OnSeekComplete replaces the pending completion callback.
func (e *Element) OnSeekComplete(fn func()) {
	e.pending = fn
}

// Snapshot returns the mirrored element state.
func (e *Element) Snapshot() media.Snapshot {
	return media.Snapshot{
		ID:       e.id,
		Kind:     e.kind,
		Backend:  Backend,
		Paused:   e.paused,
		Seeking:  e.seeking,
		Position: e.getPosition(),
	}
}

// Close stops the event listener. mpv itself keeps running.
func (e *Element) Close() error {
	e.listener.Stop()
	return nil
}

// onEvent runs on the listener goroutine.
func (e *Element) onEvent(ev Event) {
	switch ev.Name {
	case "playback-restart":
		e.post(e.finishSeek)
	case "property-change":
		switch ev.Property {
		case "pause":
			if v, ok := ev.Data.(bool); ok {
				e.post(func() { e.paused = v })
			}
		case "time-pos":
			if v, ok := ev.Data.(float64); ok {
				e.setPosition(v)
			}
		}
	}
}

func (e *Element) finishSeek() {
	if !e.seeking {
		return
	}
	e.seeking = false

	cb := e.pending
	e.pending = nil

	zlog.Debug().Msgf("mpv: seek completed: id=%s", e.id)

	if cb != nil {
		cb()
	}
}

func (e *Element) post(fn func()) {
	if err := e.scheduler.Post(fn); err != nil {
		zlog.Debug().Msgf("mpv: dropping event: id=%s err=%v", e.id, err)
	}
}

func (e *Element) setPosition(v float64) {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	e.position = v
}

func (e *Element) getPosition() float64 {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	return e.position
}
