package retrier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/requeue/backoff"
)

func testConfig() Config {
	return Config{
		Destination: "orders",
		MaxRetries:  3,
		Backoff: backoff.Config{
			Strategy:  backoff.StrategyFixed,
			BaseDelay: time.Second,
		},
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := testConfig()

	assert.True(t, cfg.preserveExpiry(), "expiry preservation defaults on")
	assert.Equal(t, DefaultSessionOrderingIncrement, cfg.orderingIncrement())

	off := false
	cfg.PreserveExpiry = &off
	assert.False(t, cfg.preserveExpiry())

	cfg.SessionOrderingIncrement = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, cfg.orderingIncrement())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.Destination = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.SessionOrderingIncrement = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.Backoff = backoff.Config{Strategy: "warp"}
	assert.Error(t, cfg.Validate())
}
