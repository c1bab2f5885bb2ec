// Package backoff computes retry delays for the requeue engine.
//
// Unlike a blocking retry loop, the engine never sleeps out a delay: it
// republishes the message scheduled for later delivery. This package is
// therefore a pure calculator: (configuration, attempt index) -> delay.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/requeue/errors"
)

// Strategy selects the delay progression across attempts.
type Strategy string

// Supported strategies
const (
	// StrategyFixed uses BaseDelay for every attempt
	StrategyFixed Strategy = "fixed"
	// StrategyLinear grows the delay by Increment per attempt
	StrategyLinear Strategy = "linear"
	// StrategyExponential multiplies the delay by Factor per attempt
	StrategyExponential Strategy = "exponential"
)

// Thread-safe random source for jitter
var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides backoff configuration. The zero values of Factor and
// Increment are replaced by their defaults (2 and BaseDelay) at
// computation time, so a Config literal only needs the fields it cares
// about.
type Config struct {
	Strategy  Strategy      `json:"strategy" yaml:"strategy"`
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
	// MaxDelay caps the exponential progression; 0 means uncapped
	MaxDelay time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	// Factor is the exponential multiplier (default 2)
	Factor float64 `json:"factor,omitempty" yaml:"factor,omitempty"`
	// Increment is the linear step per attempt (default BaseDelay)
	Increment time.Duration `json:"increment,omitempty" yaml:"increment,omitempty"`
	// JitterFraction in [0,1] adds a uniform random offset of up to
	// +/- delay*JitterFraction after the strategy computation
	JitterFraction float64 `json:"jitter_fraction,omitempty" yaml:"jitter_fraction,omitempty"`
}

// Validate checks the configuration without computing a delay. Unknown
// strategies are fatal: they surface immediately and are never retried.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFixed, StrategyLinear, StrategyExponential:
	default:
		return &errors.UnknownStrategyError{Strategy: string(c.Strategy)}
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return errors.WrapFatal(errors.New("jitter_fraction must be in [0,1]"), "backoff", "Validate")
	}
	if c.Factor < 0 {
		return errors.WrapFatal(errors.New("factor cannot be negative"), "backoff", "Validate")
	}
	return nil
}

// Delay computes the delay before the retry with the given zero-based
// attempt index (0 = delay before the first retry). The result is
// rounded to the nearest millisecond and never negative, regardless of
// configured values or jitter draws.
func Delay(cfg Config, attemptIndex int) (time.Duration, error) {
	if attemptIndex < 0 {
		attemptIndex = 0
	}

	var d time.Duration
	switch cfg.Strategy {
	case StrategyFixed:
		d = cfg.BaseDelay
	case StrategyLinear:
		increment := cfg.Increment
		if increment == 0 {
			increment = cfg.BaseDelay
		}
		d = cfg.BaseDelay + time.Duration(attemptIndex)*increment
	case StrategyExponential:
		factor := cfg.Factor
		if factor == 0 {
			factor = 2
		}
		scaled := float64(cfg.BaseDelay) * math.Pow(factor, float64(attemptIndex))
		if scaled > float64(math.MaxInt64) {
			scaled = float64(math.MaxInt64)
		}
		d = time.Duration(scaled)
		if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
			d = cfg.MaxDelay
		}
	default:
		return 0, &errors.UnknownStrategyError{Strategy: string(cfg.Strategy)}
	}

	if cfg.JitterFraction > 0 {
		span := float64(d) * cfg.JitterFraction
		randMu.Lock()
		offset := (randSource.Float64()*2 - 1) * span
		randMu.Unlock()
		d += time.Duration(offset)
	}

	d = d.Round(time.Millisecond)
	if d < 0 {
		d = 0
	}
	return d, nil
}
