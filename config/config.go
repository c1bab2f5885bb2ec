// Package config loads and validates the worker configuration from a
// JSON or YAML file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/requeue/backoff"
	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/retrier"
)

// Duration wraps time.Duration so config files can write "30s" or
// "1500ms" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete worker configuration
type Config struct {
	NATS    NATSConfig              `json:"nats" yaml:"nats"`
	Metrics MetricsConfig           `json:"metrics" yaml:"metrics"`
	Streams map[string]StreamConfig `json:"streams" yaml:"streams"`
}

// NATSConfig holds the connection settings for the messaging backend
type NATSConfig struct {
	URL           string   `json:"url" yaml:"url"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
}

// MetricsConfig controls the Prometheus exposition server
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// StreamConfig configures one consumed stream. Subject is consumed by
// the worker and is also where retries are republished, so a scheduled
// copy flows back through the same consumer. The map key in
// Config.Streams is the destination identifier used in metrics and logs.
type StreamConfig struct {
	Stream   string `json:"stream" yaml:"stream"`
	Subject  string `json:"subject" yaml:"subject"`
	Consumer string `json:"consumer" yaml:"consumer"`
	Workers  int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	// ForwardSubject is where the worker binary delivers due payloads;
	// optional for library use
	ForwardSubject string `json:"forward_subject,omitempty" yaml:"forward_subject,omitempty"`
	// PublishRate caps republications per second; 0 means unlimited
	PublishRate  float64     `json:"publish_rate,omitempty" yaml:"publish_rate,omitempty"`
	PublishBurst int         `json:"publish_burst,omitempty" yaml:"publish_burst,omitempty"`
	Retry        RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig is the file representation of retrier.Config
type RetryConfig struct {
	MaxRetries               int      `json:"max_retries" yaml:"max_retries"`
	Strategy                 string   `json:"strategy" yaml:"strategy"`
	BaseDelay                Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay                 Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	Factor                   float64  `json:"factor,omitempty" yaml:"factor,omitempty"`
	Increment                Duration `json:"increment,omitempty" yaml:"increment,omitempty"`
	JitterFraction           float64  `json:"jitter_fraction,omitempty" yaml:"jitter_fraction,omitempty"`
	PreserveExpiry           *bool    `json:"preserve_expiry,omitempty" yaml:"preserve_expiry,omitempty"`
	PreserveSessionOrdering  bool     `json:"preserve_session_ordering,omitempty" yaml:"preserve_session_ordering,omitempty"`
	SessionOrderingIncrement Duration `json:"session_ordering_increment,omitempty" yaml:"session_ordering_increment,omitempty"`
}

// RetrierConfig converts the stream's file configuration into the
// engine configuration, with destination as the stream's map key.
func (s StreamConfig) RetrierConfig(destination string) retrier.Config {
	return retrier.Config{
		Destination: destination,
		MaxRetries:  s.Retry.MaxRetries,
		Backoff: backoff.Config{
			Strategy:       backoff.Strategy(s.Retry.Strategy),
			BaseDelay:      s.Retry.BaseDelay.Std(),
			MaxDelay:       s.Retry.MaxDelay.Std(),
			Factor:         s.Retry.Factor,
			Increment:      s.Retry.Increment.Std(),
			JitterFraction: s.Retry.JitterFraction,
		},
		PreserveExpiry:           s.Retry.PreserveExpiry,
		PreserveSessionOrdering:  s.Retry.PreserveSessionOrdering,
		SessionOrderingIncrement: s.Retry.SessionOrderingIncrement.Std(),
	}
}

// Load reads and validates a configuration file. The format is chosen
// by extension: .yaml/.yml is YAML, everything else JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "reading config file")
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "config", "Load", "parsing YAML config")
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "config", "Load", "parsing JSON config")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration, including every stream's retry
// policy via the engine's own validation.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapFatal(fmt.Errorf("%w: nats.url", errors.ErrMissingConfig), "config", "Validate")
	}
	if len(c.Streams) == 0 {
		return errors.WrapFatal(fmt.Errorf("%w: at least one stream", errors.ErrMissingConfig), "config", "Validate")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return errors.WrapFatal(fmt.Errorf("%w: metrics.port out of range", errors.ErrInvalidConfig), "config", "Validate")
	}

	for name, stream := range c.Streams {
		if stream.Stream == "" || stream.Subject == "" || stream.Consumer == "" {
			return errors.WrapFatal(
				fmt.Errorf("%w: stream %q needs stream, subject and consumer", errors.ErrMissingConfig, name),
				"config", "Validate")
		}
		if stream.Workers < 0 {
			return errors.WrapFatal(
				fmt.Errorf("%w: stream %q workers cannot be negative", errors.ErrInvalidConfig, name),
				"config", "Validate")
		}
		if stream.PublishRate < 0 {
			return errors.WrapFatal(
				fmt.Errorf("%w: stream %q publish_rate cannot be negative", errors.ErrInvalidConfig, name),
				"config", "Validate")
		}
		if err := stream.RetrierConfig(name).Validate(); err != nil {
			return fmt.Errorf("stream %q: %w", name, err)
		}
	}
	return nil
}
