package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalErrors_StructuredFields(t *testing.T) {
	expired := &MessageExpiredError{OriginalID: "orig-1", CurrentID: "cur-3"}
	assert.Contains(t, expired.Error(), "orig-1")
	assert.Contains(t, expired.Error(), "cur-3")

	exhausted := &MaxRetriesReachedError{OriginalID: "orig-1", CurrentID: "cur-5"}
	assert.Contains(t, exhausted.Error(), "orig-1")

	unknown := &UnknownStrategyError{Strategy: "quadratic"}
	assert.Contains(t, unknown.Error(), "quadratic")
}

func TestTerminalErrors_MatchThroughWrapping(t *testing.T) {
	base := &MessageExpiredError{OriginalID: "a", CurrentID: "b"}
	wrapped := Wrap(base, "Orchestrator", "Process", "scheduling retry")

	assert.True(t, IsMessageExpired(wrapped))
	assert.True(t, IsTerminal(wrapped))
	assert.False(t, IsMaxRetriesReached(wrapped))

	var mee *MessageExpiredError
	require.True(t, As(wrapped, &mee))
	assert.Equal(t, "a", mee.OriginalID)
	assert.Equal(t, "b", mee.CurrentID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil defaults to transient", nil, ErrorTransient},
		{"plain error is transient", New("boom"), ErrorTransient},
		{"unknown strategy is fatal", &UnknownStrategyError{Strategy: "x"}, ErrorFatal},
		{"invalid config is fatal", ErrInvalidConfig, ErrorFatal},
		{"expired is invalid", &MessageExpiredError{}, ErrorInvalid},
		{"exhausted is invalid", &MaxRetriesReachedError{}, ErrorInvalid},
		{"bad envelope is invalid", fmt.Errorf("parse: %w", ErrInvalidEnvelope), ErrorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "M", "a"))
	assert.Nil(t, WrapTransient(nil, "C", "M"))

	err := WrapInvalid(New("bad payload"), "Envelope", "Parse")
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "Envelope.Parse")

	terr := WrapTransient(New("timeout"), "Publisher", "Schedule")
	assert.True(t, IsTransient(terr))

	ferr := WrapFatal(New("corrupt state"), "Store", "Add")
	assert.True(t, IsFatal(ferr))
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(New("connection refused"), "Publisher", "Schedule", "publishing envelope")
	assert.Equal(t, "Publisher.Schedule: publishing envelope failed: connection refused", err.Error())
}
