package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/requeue/errors"
)

func seqPtr(n int64) *int64 { return &n }

func sampleEnvelope() *Envelope {
	return &Envelope{
		Payload: json.RawMessage(`{"order":"o-42","amount":12.5}`),
		Binding: BindingData{
			MessageID:      "msg-1",
			EnqueuedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			ExpiresAt:      time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
			SessionID:      "session-a",
			SequenceNumber: seqPtr(7),
		},
		PublishCount: 2,
	}
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	orig := sampleEnvelope()

	data, err := orig.Encode()
	require.NoError(t, err)

	parsed, ok, err := Parse(data)
	require.NoError(t, err)
	require.True(t, ok)

	assert.JSONEq(t, string(orig.Payload), string(parsed.Payload))
	assert.Empty(t, cmp.Diff(orig.Binding, parsed.Binding))
	assert.Equal(t, orig.PublishCount, parsed.PublishCount)
}

func TestNext_IncrementsPublishCountOnly(t *testing.T) {
	orig := sampleEnvelope()
	next := orig.Next()

	assert.Equal(t, orig.PublishCount+1, next.PublishCount)
	assert.Empty(t, cmp.Diff(orig.Binding, next.Binding))
	assert.Equal(t, orig.Payload, next.Payload)

	// A full failed-then-retried hop: encode, parse, advance, encode, parse.
	data, err := orig.Encode()
	require.NoError(t, err)
	parsed, ok, err := Parse(data)
	require.NoError(t, err)
	require.True(t, ok)

	data2, err := parsed.Next().Encode()
	require.NoError(t, err)
	reparsed, ok, err := Parse(data2)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, orig.PublishCount+1, reparsed.PublishCount)
	assert.Empty(t, cmp.Diff(orig.Binding, reparsed.Binding))
}

func TestParse_RawFirstDelivery(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"order":"o-42"}`),
		[]byte(`"just a string"`),
		[]byte(`[1,2,3]`),
		[]byte(`not json at all`),
		[]byte(`{"publishCount":0}`),
	}
	for _, body := range bodies {
		env, ok, err := Parse(body)
		assert.NoError(t, err, "body %s", body)
		assert.False(t, ok, "body %s", body)
		assert.Nil(t, env)
	}
}

func TestParse_UntaggedLegacyEnvelope(t *testing.T) {
	body := []byte(`{
		"payload": {"v": 1},
		"originalBindingData": {"messageId": "m-1", "sessionId": "s"},
		"publishCount": 3
	}`)

	env, ok, err := Parse(body)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, env.PublishCount)
	assert.Equal(t, "m-1", env.Binding.MessageID)
	assert.Equal(t, "s", env.Binding.SessionID)
	assert.Nil(t, env.Binding.SequenceNumber)
}

func TestParse_TaggedMalformedIsError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"banana","payload":{},"originalBindingData":{},"publishCount":1}`},
		{"missing publishCount", `{"kind":"retry","payload":{},"originalBindingData":{}}`},
		{"publishCount below 1", `{"kind":"retry","payload":{},"originalBindingData":{},"publishCount":0}`},
		{"binding wrong type", `{"kind":"retry","payload":{},"originalBindingData":{"sequenceNumber":"seven"},"publishCount":1}`},
		{"unexpected binding field", `{"kind":"retry","payload":{},"originalBindingData":{"evil":true},"publishCount":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := Parse([]byte(tt.body))
			assert.False(t, ok)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestParse_ZonelessTimestampsAreUTC(t *testing.T) {
	body := []byte(`{
		"kind": "retry",
		"payload": {},
		"originalBindingData": {"messageId": "m", "expiresAt": "2026-03-01T10:05:00"},
		"publishCount": 1
	}`)

	env, ok, err := Parse(body)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), env.Binding.ExpiresAt)
}

func TestEncode_OmitsAbsentBindingFields(t *testing.T) {
	env := &Envelope{
		Payload:      json.RawMessage(`{}`),
		Binding:      BindingData{MessageID: "m-1"},
		PublishCount: 1,
	}

	data, err := env.Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "retry", raw["kind"])

	binding, ok := raw["originalBindingData"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, binding, "expiresAt")
	assert.NotContains(t, binding, "sessionId")
	assert.NotContains(t, binding, "sequenceNumber")
}
