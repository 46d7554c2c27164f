// Package backend builds media elements from configuration.
package backend

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/mediasync/internal/domain/media"
	"github.com/osa030/mediasync/internal/infra/config"
	"github.com/osa030/mediasync/internal/infra/mpv"
	"github.com/osa030/mediasync/internal/infra/simmedia"
)

// ErrUnknownBackend is returned for a backend name that is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Scheduler runs element callbacks on the synchronizer's goroutine.
type Scheduler interface {
	Post(fn func()) error
}

// SimulatedSettings configures a simulated element.
type SimulatedSettings struct {
	SeekLatencyMs int `yaml:"seek_latency_ms" mapstructure:"seek_latency_ms" default:"100" validate:"gte=0,lte=60000"`
	DurationMs    int `yaml:"duration_ms" mapstructure:"duration_ms" validate:"gte=0"`
	TickMs        int `yaml:"tick_ms" mapstructure:"tick_ms" default:"10" validate:"gte=1,lte=1000"`
}

// MPVSettings configures an mpv element.
type MPVSettings struct {
	SocketPath   string `yaml:"socket_path" mapstructure:"socket_path" validate:"required"`
	TimeoutMs    int    `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"1000" validate:"gte=1,lte=60000"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries" default:"3" validate:"gte=1,lte=20"`
	RetryDelayMs int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms" default:"200" validate:"gte=0,lte=10000"`
}

type factory struct {
	description string
	validate    func(settings map[string]any) error
	build       func(cfg config.ElementConfig, scheduler Scheduler) (media.Element, error)
}

var factories = map[string]factory{
	simmedia.Backend: {
		description: "Wall-clock simulated element",
		validate: func(settings map[string]any) error {
			var s SimulatedSettings
			return decodeSettings(settings, &s)
		},
		build: newSimulated,
	},
	mpv.Backend: {
		description: "mpv player over JSON IPC",
		validate: func(settings map[string]any) error {
			var s MPVSettings
			return decodeSettings(settings, &s)
		},
		build: newMPV,
	},
}

// Info describes a registered backend.
type Info struct {
	Name        string
	Description string
}

// List returns the registered backends ordered by name.
func List() []Info {
	names := lo.Keys(factories)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Info {
		return Info{Name: name, Description: factories[name].description}
	})
}

// ValidateConfig checks the backend and settings of every element without
// connecting to any player.
func ValidateConfig(cfg *config.Config) error {
	for _, e := range cfg.Elements {
		f, ok := factories[e.Backend]
		if !ok {
			return errors.Wrapf(ErrUnknownBackend, "element %s: %s", e.ID, e.Backend)
		}
		if err := f.validate(e.Settings); err != nil {
			return errors.Wrapf(err, "element %s", e.ID)
		}
	}
	return nil
}

// New builds the element described by cfg.
func New(cfg config.ElementConfig, scheduler Scheduler) (media.Element, error) {
	f, ok := factories[cfg.Backend]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "element %s: %s", cfg.ID, cfg.Backend)
	}
	e, err := f.build(cfg, scheduler)
	if err != nil {
		return nil, errors.Wrapf(err, "element %s", cfg.ID)
	}
	zlog.Info().Msgf("Element ready: id=%s kind=%s backend=%s", cfg.ID, cfg.Kind, cfg.Backend)
	return e, nil
}

func newSimulated(cfg config.ElementConfig, scheduler Scheduler) (media.Element, error) {
	var s SimulatedSettings
	if err := decodeSettings(cfg.Settings, &s); err != nil {
		return nil, err
	}
	return simmedia.New(cfg.ID, media.Kind(cfg.Kind), scheduler, simmedia.Config{
		SeekLatency:  ms(s.SeekLatencyMs),
		Duration:     ms(s.DurationMs),
		TickInterval: ms(s.TickMs),
	}), nil
}

func newMPV(cfg config.ElementConfig, scheduler Scheduler) (media.Element, error) {
	var s MPVSettings
	if err := decodeSettings(cfg.Settings, &s); err != nil {
		return nil, err
	}
	return mpv.New(cfg.ID, media.Kind(cfg.Kind), scheduler, mpv.Config{
		SocketPath: s.SocketPath,
		Timeout:    ms(s.TimeoutMs),
		MaxRetries: s.MaxRetries,
		RetryDelay: ms(s.RetryDelayMs),
	})
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
