package envelope

import (
	"encoding/json"
	"time"

	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/pkg/timestamp"
)

// ContentType is the media type of encoded envelopes.
const ContentType = "application/json"

// Kind discriminates envelope bodies from arbitrary first-delivery
// payloads. The publisher tags every envelope it emits, so consumers
// never have to guess from the body shape.
type Kind string

// KindRetry marks a body produced by the engine's republish path. It
// covers both failure-driven retries and ordering deferrals; the two
// are distinguished by whether PublishCount advanced.
const KindRetry Kind = "retry"

// BindingData is the immutable snapshot of delivery metadata captured
// when a logical message is first seen. It is set exactly once and
// copied unchanged into every subsequent envelope, so the original
// identity, enqueue time, expiry and session coordinates survive any
// number of republications.
type BindingData struct {
	MessageID      string
	EnqueuedAt     time.Time
	ExpiresAt      time.Time
	SessionID      string
	SequenceNumber *int64
}

// Envelope is the unit carried through re-publication: the opaque
// handler payload plus the retry bookkeeping the engine needs.
type Envelope struct {
	Payload      json.RawMessage
	Binding      BindingData
	PublishCount int
}

// wireBinding is the JSON shape of BindingData. Timestamps travel as
// RFC3339 strings; zone-less strings are interpreted as UTC.
type wireBinding struct {
	MessageID      string `json:"messageId,omitempty"`
	EnqueuedAt     string `json:"enqueuedAt,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	SequenceNumber *int64 `json:"sequenceNumber,omitempty"`
}

type wireEnvelope struct {
	Kind         Kind            `json:"kind,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Binding      wireBinding     `json:"originalBindingData"`
	PublishCount int             `json:"publishCount"`
}

// Next returns the envelope for the following publication: same payload,
// unchanged binding data, publish count advanced by one.
func (e *Envelope) Next() *Envelope {
	return &Envelope{
		Payload:      e.Payload,
		Binding:      e.Binding,
		PublishCount: e.PublishCount + 1,
	}
}

// Encode marshals the envelope into its tagged wire form.
func (e *Envelope) Encode() ([]byte, error) {
	w := wireEnvelope{
		Kind:    KindRetry,
		Payload: e.Payload,
		Binding: wireBinding{
			MessageID:      e.Binding.MessageID,
			EnqueuedAt:     timestamp.Format(e.Binding.EnqueuedAt),
			ExpiresAt:      timestamp.Format(e.Binding.ExpiresAt),
			SessionID:      e.Binding.SessionID,
			SequenceNumber: e.Binding.SequenceNumber,
		},
		PublishCount: e.PublishCount,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "Envelope", "Encode", "marshaling envelope")
	}
	return data, nil
}

// Parse inspects a message body and restores the envelope if the body
// is one. The second return value reports whether the body was an
// envelope at all: (nil, false, nil) means a first delivery whose raw
// payload should be handled as-is.
//
// Bodies tagged with a kind are authoritative: a tagged body that fails
// schema validation is an invalid-envelope error, never silently
// demoted to a first delivery. Untagged bodies carrying a publishCount
// of at least 1 are accepted for compatibility with envelopes written
// before the tag existed.
func Parse(body []byte) (*Envelope, bool, error) {
	var probe struct {
		Kind         *Kind `json:"kind"`
		PublishCount *int  `json:"publishCount"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		// Not a JSON object: a raw first-delivery payload.
		return nil, false, nil
	}

	tagged := probe.Kind != nil
	if !tagged && (probe.PublishCount == nil || *probe.PublishCount < 1) {
		return nil, false, nil
	}

	if tagged {
		if *probe.Kind != KindRetry {
			return nil, false, errors.WrapInvalid(
				errors.ErrInvalidEnvelope, "Envelope", "Parse")
		}
		if err := validateSchema(body); err != nil {
			return nil, false, err
		}
	}

	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, false, errors.WrapInvalid(
			errors.ErrInvalidEnvelope, "Envelope", "Parse")
	}
	if w.PublishCount < 1 {
		return nil, false, errors.WrapInvalid(
			errors.ErrInvalidEnvelope, "Envelope", "Parse")
	}

	env := &Envelope{
		Payload: w.Payload,
		Binding: BindingData{
			MessageID:      w.Binding.MessageID,
			EnqueuedAt:     timestamp.ParseTime(w.Binding.EnqueuedAt),
			ExpiresAt:      timestamp.ParseTime(w.Binding.ExpiresAt),
			SessionID:      w.Binding.SessionID,
			SequenceNumber: w.Binding.SequenceNumber,
		},
		PublishCount: w.PublishCount,
	}
	return env, true, nil
}
