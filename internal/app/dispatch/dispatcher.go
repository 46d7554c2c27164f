// Package dispatch routes tagged controller messages to the synchronizer.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/app/synchronizer"
	"github.com/osa030/mediasync/internal/domain/media"
	"github.com/osa030/mediasync/internal/domain/message"
)

// ErrInvalidPayload is returned when a message's data cannot be decoded.
var ErrInvalidPayload = errors.New("invalid message payload")

// Runner runs fn on the goroutine that owns the synchronizer and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Elements resolves element ids.
type Elements interface {
	Get(id string) (media.Element, error)
	All() []media.Element
}

// Broadcaster publishes outbound messages. Acks and the diagnostics raised
// while handling a message must share one ordered broadcaster.
type Broadcaster interface {
	Broadcast(*message.Message)
}

// Status is the synchronizer state together with every element.
type Status struct {
	State      string           `json:"state"`
	Restarting bool             `json:"restarting"`
	Elements   []media.Snapshot `json:"elements"`
}

// Dispatcher decodes messages and applies them to the synchronizer.
type Dispatcher struct {
	runner      Runner
	sync        *synchronizer.Synchronizer
	elements    Elements
	broadcaster Broadcaster
	logger      synchronizer.Logger
}

// NewDispatcher creates a dispatcher. broadcaster may be nil.
func NewDispatcher(
	runner Runner,
	sync *synchronizer.Synchronizer,
	elements Elements,
	broadcaster Broadcaster,
	logger synchronizer.Logger,
) *Dispatcher {
	return &Dispatcher{
		runner:      runner,
		sync:        sync,
		elements:    elements,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Dispatch applies msg and returns once the synchronizer has handled it.
//
// Unknown tags and unknown element ids are reported to the logger and
// ignored. Only undecodable payloads and runner failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message) error {
	var task func()

	switch msg.Tag {
	case message.TagPlay:
		var id string
		if err := d.decode(msg, &id); err != nil {
			return err
		}
		task = func() {
			d.withElement(id, func(e media.Element) {
				d.sync.Play(e)
			})
		}

	case message.TagPause:
		var id string
		if err := d.decode(msg, &id); err != nil {
			return err
		}
		task = func() {
			d.withElement(id, func(e media.Element) {
				d.sync.Pause(e)
			})
		}

	case message.TagSeek:
		var data message.SeekData
		if err := d.decode(msg, &data); err != nil {
			return err
		}
		task = func() {
			d.withElement(data.ID, func(e media.Element) {
				d.sync.Seek(e, data.Time)
			})
		}

	case message.TagRestartLoop:
		var data message.RestartLoopData
		if err := d.decode(msg, &data); err != nil {
			return err
		}
		task = func() {
			d.withElement(data.Audio.ID, func(audio media.Element) {
				d.withElement(data.Video.ID, func(video media.Element) {
					d.sync.RestartLoop(audio, video, data.Audio.Time, data.Video.Time)
				})
			})
		}

	default:
		d.logger.Warn("Unexpected message", map[string]any{
			"tag": msg.Tag,
		})
		return nil
	}

	if err := d.runner.Do(ctx, task); err != nil {
		return errors.Wrapf(err, "dispatch %s", msg.Tag)
	}
	zlog.Debug().Msgf("dispatch: handled %s", msg.Tag)

	d.ack(msg.Tag)
	return nil
}

// Status returns the restart state and a snapshot of every element.
func (d *Dispatcher) Status(ctx context.Context) (*Status, error) {
	status := &Status{}
	err := d.runner.Do(ctx, func() {
		state := d.sync.State()
		status.State = state.String()
		status.Restarting = state.IsRestarting()
		for _, e := range d.elements.All() {
			status.Elements = append(status.Elements, e.Snapshot())
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "read status")
	}
	return status, nil
}

func (d *Dispatcher) decode(msg *message.Message, v any) error {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		d.logger.Error("Malformed message data", map[string]any{
			"tag":   msg.Tag,
			"error": err,
		})
		return errors.Mark(errors.Wrapf(err, "decode %s data", msg.Tag), ErrInvalidPayload)
	}
	return nil
}

// withElement runs fn with the element for id, or logs and skips it.
func (d *Dispatcher) withElement(id string, fn func(media.Element)) {
	e, err := d.elements.Get(id)
	if err != nil {
		d.logger.Warn("Could not find element with id", map[string]any{
			"id":    id,
			"error": err,
		})
		return
	}
	fn(e)
}

func (d *Dispatcher) ack(tag string) {
	if d.broadcaster == nil {
		return
	}
	msg, err := message.New(message.TagAck, message.AckData{Tag: tag})
	if err != nil {
		zlog.Error().Err(err).Msg("dispatch: build ack")
		return
	}
	d.broadcaster.Broadcast(msg)
}
