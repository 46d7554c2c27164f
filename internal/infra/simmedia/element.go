// Package simmedia provides a wall-clock simulated media element.
package simmedia

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/domain/media"
)

// Backend is the backend name reported in snapshots.
const Backend = "simulated"

var ErrClosed = errors.New("element closed")

// Scheduler runs completions on the goroutine that drives the element.
type Scheduler interface {
	Post(fn func()) error
}

// Config holds simulated element configuration.
type Config struct {
	SeekLatency  time.Duration // Time a seek takes to settle
	Duration     time.Duration // Media length, 0 for unbounded
	TickInterval time.Duration // Resolution of the seek timer
}

// Element is a media element whose position follows the wall clock.
//
// Every method must be called on the scheduler's goroutine, or after it
// has stopped.
type Element struct {
	id        string
	kind      media.Kind
	scheduler Scheduler
	config    Config

	paused    bool
	seeking   bool
	closed    bool
	base      time.Duration // Position when startTime was taken
	startTime time.Time     // Wall time playback (re)started from base
	pending   func()

	seekSeq    uint64
	seekCancel func()
}

// New creates a paused element at position 0.
func New(id string, kind media.Kind, scheduler Scheduler, config Config) *Element {
	if config.TickInterval <= 0 {
		config.TickInterval = 10 * time.Millisecond
	}
	return &Element{
		id:        id,
		kind:      kind,
		scheduler: scheduler,
		config:    config,
		paused:    true,
	}
}

func (e *Element) ID() string       { return e.id }
func (e *Element) Kind() media.Kind { return e.kind }
func (e *Element) IsSeeking() bool  { return e.seeking }
func (e *Element) IsPaused() bool   { return e.paused }

// Play resumes playback from the current position.
func (e *Element) Play() error {
	if e.closed {
		return ErrClosed
	}
	if !e.paused {
		return nil
	}
	e.base = e.position()
	e.startTime = toWallTime(time.Now())
	e.paused = false
	return nil
}

// Pause freezes the position.
func (e *Element) Pause() error {
	if e.closed {
		return ErrClosed
	}
	if e.paused {
		return nil
	}
	e.base = e.position()
	e.paused = true
	return nil
}

// SetPosition starts a seek. A seek issued while another is in flight
// replaces it; only the last one completes.
func (e *Element) SetPosition(seconds float64) error {
	if e.closed {
		return ErrClosed
	}

	target := time.Duration(seconds * float64(time.Second))
	if target < 0 {
		target = 0
	}
	if e.config.Duration > 0 && target > e.config.Duration {
		target = e.config.Duration
	}

	if e.seekCancel != nil {
		e.seekCancel()
		e.seekCancel = nil
	}

	e.base = target
	e.seeking = true
	e.seekSeq++
	seq := e.seekSeq

	zlog.Debug().Msgf("simmedia: seek started: id=%s target=%v latency=%v", e.id, target, e.config.SeekLatency)

	e.seekCancel = startWallClockTimer(e.config.SeekLatency, e.config.TickInterval, func() {
		err := e.scheduler.Post(func() {
			if e.closed || seq != e.seekSeq {
				return
			}
			e.finishSeek()
		})
		if err != nil {
			zlog.Debug().Msgf("simmedia: dropping seek completion: id=%s err=%v", e.id, err)
		}
	})
	return nil
}

// OnSeekComplete replaces the pending completion callback.
func (e *Element) OnSeekComplete(fn func()) {
	e.pending = fn
}

// Position returns the current playback position.
func (e *Element) Position() time.Duration {
	return e.position()
}

// Snapshot returns the element state.
func (e *Element) Snapshot() media.Snapshot {
	return media.Snapshot{
		ID:       e.id,
		Kind:     e.kind,
		Backend:  Backend,
		Paused:   e.paused,
		Seeking:  e.seeking,
		Position: e.position().Seconds(),
	}
}

// Close stops any pending seek timer.
func (e *Element) Close() error {
	e.closed = true
	if e.seekCancel != nil {
		e.seekCancel()
		e.seekCancel = nil
	}
	return nil
}

func (e *Element) finishSeek() {
	e.seekCancel = nil
	e.seeking = false
	e.startTime = toWallTime(time.Now())

	cb := e.pending
	e.pending = nil

	zlog.Debug().Msgf("simmedia: seek completed: id=%s position=%v", e.id, e.base)

	if cb != nil {
		cb()
	}
}

func (e *Element) position() time.Duration {
	if e.paused || e.seeking {
		return e.base
	}
	pos := e.base + toWallTime(time.Now()).Sub(e.startTime)
	if e.config.Duration > 0 && pos > e.config.Duration {
		return e.config.Duration
	}
	return pos
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func startWallClockTimer(duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			if !toWallTime(time.Now()).Before(endTime) {
				select {
				case <-ctx.Done():
				default:
					callback()
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
