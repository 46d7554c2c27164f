// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Element kinds accepted in configuration.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Loop         LoopConfig         `yaml:"loop"`
	Notification NotificationConfig `yaml:"notification"`
	Elements     []ElementConfig    `yaml:"elements" validate:"required,len=2,unique=ID,dive"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080" validate:"required"`
	Token string      `yaml:"token"` // Empty disables authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LoopConfig represents event loop configuration.
type LoopConfig struct {
	QueueSize int `yaml:"queue_size" default:"64" validate:"gte=1,lte=4096"`
}

// NotificationConfig represents outbound notification configuration.
type NotificationConfig struct {
	SendTimeoutMs int `yaml:"send_timeout_ms" default:"500" validate:"gte=1,lte=10000"`
	QueueSize     int `yaml:"queue_size" default:"256" validate:"gte=1"`
}

// ElementConfig represents one media element.
// Settings are decoded by the backend.
type ElementConfig struct {
	ID       string         `yaml:"id" validate:"required"`
	Kind     string         `yaml:"kind" validate:"required,oneof=audio video"`
	Backend  string         `yaml:"backend" default:"simulated" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses, defaults and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MEDIASYNC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MEDIASYNC_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Exactly one element of each kind
	if err := c.validateKinds(); err != nil {
		return err
	}

	return nil
}

// validateKinds checks that one audio and one video element are configured.
func (c *Config) validateKinds() error {
	for _, kind := range []string{KindAudio, KindVideo} {
		n := lo.CountBy(c.Elements, func(e ElementConfig) bool {
			return e.Kind == kind
		})
		if n != 1 {
			return errors.Newf("exactly one %s element is required, got %d", kind, n)
		}
	}
	return nil
}

// ElementByKind returns the element of the given kind.
func (c *Config) ElementByKind(kind string) (ElementConfig, bool) {
	return lo.Find(c.Elements, func(e ElementConfig) bool {
		return e.Kind == kind
	})
}

// SendTimeout returns the notification send timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Notification.SendTimeoutMs) * time.Millisecond
}
