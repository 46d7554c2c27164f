// Package loop provides a single-goroutine task loop.
//
// Every task posted to a Loop runs to completion before the next one
// starts, in the order it was posted. Code that only ever runs inside
// tasks of the same loop never needs locking.
package loop

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrClosed is returned when posting to a loop that has been closed.
var ErrClosed = errors.New("loop closed")

// Loop runs posted tasks on one goroutine.
type Loop struct {
	tasks chan func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a loop with the given task queue capacity.
func New(queueSize int) *Loop {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled or Close is called.
// Tasks still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case fn := <-l.tasks:
			l.runTask(fn)
		}
	}
}

// Post queues fn without waiting for it to run.
// It blocks while the queue is full.
func (l *Loop) Post(fn func()) error {
	return l.post(context.Background(), fn)
}

// Do queues fn and waits until it has run.
// Do must not be called from inside a task of the same loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// Close stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Done returns a channel that is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) post(ctx context.Context, fn func()) error {
	select {
	case <-l.stop:
		return ErrClosed
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrClosed
	case <-l.done:
		return ErrClosed
	}
}

// runTask executes fn, keeping the loop alive if it panics.
func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("loop: task panicked: %v", r)
		}
	}()
	fn()
}
