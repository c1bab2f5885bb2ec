package retrier

import (
	"time"

	"github.com/c360/requeue/backoff"
	"github.com/c360/requeue/errors"
)

// Default configuration values
const (
	// DefaultSessionOrderingIncrement spaces ordered reschedules within
	// a session
	DefaultSessionOrderingIncrement = 1000 * time.Millisecond
)

// Config is the retry configuration for one message stream. It is
// immutable for the lifetime of the orchestrator built from it.
type Config struct {
	// Destination identifies the stream for metrics labels and log
	// fields. It is passed through to the adapter unchanged.
	Destination string `json:"destination" yaml:"destination"`

	// MaxRetries is the number of retries after the first delivery.
	// A delivery whose publish count already exceeds it fails with
	// MaxRetriesReachedError instead of being rescheduled.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Backoff selects the delay progression between retries
	Backoff backoff.Config `json:"backoff" yaml:"backoff"`

	// PreserveExpiry keeps the original message deadline across retries
	// by carrying the remaining time-to-live onto every republication.
	// nil means true.
	PreserveExpiry *bool `json:"preserve_expiry,omitempty" yaml:"preserve_expiry,omitempty"`

	// PreserveSessionOrdering serializes retries within a session so
	// later sequence numbers do not overtake pending earlier ones
	PreserveSessionOrdering bool `json:"preserve_session_ordering,omitempty" yaml:"preserve_session_ordering,omitempty"`

	// SessionOrderingIncrement is the gap inserted behind a pending
	// earlier reschedule; 0 means DefaultSessionOrderingIncrement
	SessionOrderingIncrement time.Duration `json:"session_ordering_increment,omitempty" yaml:"session_ordering_increment,omitempty"`
}

// Validate checks the configuration. Unknown backoff strategies are
// rejected here so they surface at construction, before any message is
// in flight.
func (c Config) Validate() error {
	if c.Destination == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "retrier", "Validate")
	}
	if c.MaxRetries < 0 {
		return errors.WrapFatal(errors.New("max_retries cannot be negative"), "retrier", "Validate")
	}
	if c.SessionOrderingIncrement < 0 {
		return errors.WrapFatal(errors.New("session_ordering_increment cannot be negative"), "retrier", "Validate")
	}
	return c.Backoff.Validate()
}

func (c Config) preserveExpiry() bool {
	return c.PreserveExpiry == nil || *c.PreserveExpiry
}

func (c Config) orderingIncrement() time.Duration {
	if c.SessionOrderingIncrement == 0 {
		return DefaultSessionOrderingIncrement
	}
	return c.SessionOrderingIncrement
}
