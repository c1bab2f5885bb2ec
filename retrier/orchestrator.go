package retrier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/requeue/backoff"
	"github.com/c360/requeue/envelope"
	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/metric"
	"github.com/c360/requeue/pkg/timestamp"
	"github.com/c360/requeue/sessionstore"
)

// Delivery is what the host runtime hands the orchestrator for one
// incoming message: the raw body plus the trigger metadata the queue
// supplied for this delivery.
type Delivery struct {
	Body           []byte
	MessageID      string
	EnqueuedAt     time.Time
	ExpiresAt      time.Time
	SessionID      string
	SequenceNumber *int64
}

// Invocation is the augmented context passed to the user handler. The
// payload is the original handler input, unwrapped from any envelope;
// Binding and PublishCount expose the retry state so handlers can act
// on attempt counts if they choose to.
type Invocation struct {
	Payload      json.RawMessage
	Binding      envelope.BindingData
	PublishCount int
	Logger       *slog.Logger
}

// Handler is the user message handler invoked per delivery.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// OutboundMessage is one republication handed to the Publisher.
type OutboundMessage struct {
	Body        []byte
	ContentType string
	ScheduledAt time.Time
	// SessionID carries session affinity onto the republished copy;
	// empty when the message has no session
	SessionID string
	// TTL bounds the republished message's lifetime; 0 means the
	// destination's default applies
	TTL time.Duration
}

// Publisher re-enqueues messages for later delivery. The engine only
// consumes success or failure of the operation.
type Publisher interface {
	Schedule(ctx context.Context, msg OutboundMessage) error
}

// Orchestrator composes the backoff calculator, expiry guard and
// session-ordering store around a single message-handling attempt. One
// Process call handles exactly one delivery end-to-end; the host
// runtime may run any number of Process calls concurrently, and the
// session store is the only state they share.
type Orchestrator struct {
	cfg       Config
	publisher Publisher
	store     sessionstore.Store
	metrics   *metric.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStore injects a session-ordering store. Defaults to a fresh
// in-memory store; inject a shared one when several orchestrators serve
// the same session space.
func WithStore(store sessionstore.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics attaches engine metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator for one message stream. The configuration
// is validated eagerly: an unknown backoff strategy fails here rather
// than on the first retry.
func New(cfg Config, publisher Publisher, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		return nil, errors.WrapFatal(errors.New("publisher is required"), "Orchestrator", "New")
	}

	o := &Orchestrator{
		cfg:       cfg,
		publisher: publisher,
		store:     sessionstore.NewMemoryStore(),
		logger:    slog.Default(),
		now:       timestamp.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("destination", cfg.Destination)
	return o, nil
}

// ClearSession drops all pending ordering entries for a session. This
// is an operational escape hatch: a wedged session resumes unordered.
func (o *Orchestrator) ClearSession(sessionID string) {
	o.store.Clear(sessionID)
	o.updateSessionGauge()
}

// Process runs the retry state machine for one delivery.
//
// Outcomes:
//   - handler succeeded: its result is returned with a nil error
//   - handler failed, retry scheduled: (nil, nil) - the failed delivery
//     is consumed, a delayed copy now owns the logical message
//   - ordering deferral: (nil, nil) without the handler ever running
//   - terminal: MessageExpiredError, MaxRetriesReachedError or a fatal
//     configuration error escapes so the host's dead-letter path applies
//   - transient: a republish that itself failed escapes as a transient
//     error so the host redelivers this attempt
func (o *Orchestrator) Process(ctx context.Context, d Delivery, handler Handler) (any, error) {
	now := o.now()

	env, err := o.restore(d)
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.DeliveriesReceived.WithLabelValues(o.cfg.Destination).Inc()
	}

	ordering := o.cfg.PreserveSessionOrdering &&
		env.Binding.SessionID != "" && env.Binding.SequenceNumber != nil

	if ordering {
		if done, err := o.deferForOrdering(ctx, env, now); done || err != nil {
			return nil, err
		}
	}

	result, handlerErr := o.invoke(ctx, env, handler, d.MessageID)
	if handlerErr == nil {
		if ordering {
			o.store.Remove(env.Binding.SessionID, *env.Binding.SequenceNumber)
			o.updateSessionGauge()
		}
		return result, nil
	}

	return nil, o.scheduleRetry(ctx, d, env, ordering, handlerErr)
}

// restore rebuilds retry state from the body, or synthesizes it for a
// first delivery. originalBindingData is captured exactly once, here,
// and never overwritten on later hops.
func (o *Orchestrator) restore(d Delivery) (*envelope.Envelope, error) {
	env, ok, err := envelope.Parse(d.Body)
	if err != nil {
		return nil, err
	}
	if ok {
		return env, nil
	}

	payload := json.RawMessage(d.Body)
	if !json.Valid(d.Body) {
		// Non-JSON first deliveries still need a JSON carrier
		payload, _ = json.Marshal(string(d.Body))
	}
	return &envelope.Envelope{
		Payload: payload,
		Binding: envelope.BindingData{
			MessageID:      d.MessageID,
			EnqueuedAt:     d.EnqueuedAt,
			ExpiresAt:      d.ExpiresAt,
			SessionID:      d.SessionID,
			SequenceNumber: d.SequenceNumber,
		},
		PublishCount: 1,
	}, nil
}

// deferForOrdering republishes the unmodified envelope behind a pending
// earlier reschedule in the same session. This is not a retry: the
// publish count does not advance and the handler never runs.
func (o *Orchestrator) deferForOrdering(ctx context.Context, env *envelope.Envelope, now time.Time) (bool, error) {
	sessionID := env.Binding.SessionID
	seq := *env.Binding.SequenceNumber

	deferredAt, pending := o.store.DeferAfterPending(sessionID, seq, now, o.cfg.orderingIncrement())
	if !pending {
		return false, nil
	}

	body, err := env.Encode()
	if err != nil {
		o.store.Remove(sessionID, seq)
		return true, err
	}
	err = o.publisher.Schedule(ctx, OutboundMessage{
		Body:        body,
		ContentType: envelope.ContentType,
		ScheduledAt: deferredAt,
		SessionID:   sessionID,
	})
	if err != nil {
		o.store.Remove(sessionID, seq)
		if o.metrics != nil {
			o.metrics.PublishErrors.WithLabelValues(o.cfg.Destination).Inc()
		}
		return true, errors.WrapTransient(err, "Orchestrator", "deferForOrdering")
	}

	o.updateSessionGauge()
	if o.metrics != nil {
		o.metrics.Deferrals.WithLabelValues(o.cfg.Destination).Inc()
	}
	o.logger.Info("deferred delivery to preserve session order",
		"sessionId", sessionID,
		"sequenceNumber", seq,
		"scheduledAt", timestamp.Format(deferredAt))
	return true, nil
}

// invoke runs the user handler with panic recovery: any thrown
// condition is normalized to an error so it feeds the retry path
// instead of killing the worker.
func (o *Orchestrator) invoke(ctx context.Context, env *envelope.Envelope, handler Handler, currentID string) (result any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if o.metrics != nil {
			status := "success"
			if err != nil {
				status = "failure"
			}
			o.metrics.ObserveHandler(o.cfg.Destination, status, time.Since(start))
		}
	}()

	inv := &Invocation{
		Payload:      env.Payload,
		Binding:      env.Binding,
		PublishCount: env.PublishCount,
		Logger: o.logger.With(
			"messageId", currentID,
			"originalMessageId", env.Binding.MessageID,
			"publishCount", env.PublishCount),
	}
	return handler(ctx, inv)
}

// scheduleRetry handles a failed delivery: exhaustion check, backoff,
// ordering adjustment, expiry guard, republish. The clock is read here
// rather than at Process entry so a slow handler does not shift the
// schedule: the delay counts from the failure, and the TTL reflects
// the time actually left.
func (o *Orchestrator) scheduleRetry(ctx context.Context, d Delivery, env *envelope.Envelope, ordering bool, handlerErr error) error {
	now := o.now()
	sessionID := env.Binding.SessionID
	var seq int64
	if ordering {
		seq = *env.Binding.SequenceNumber
	}

	if env.PublishCount > o.cfg.MaxRetries {
		if ordering {
			o.store.Remove(sessionID, seq)
			o.updateSessionGauge()
		}
		if o.metrics != nil {
			o.metrics.RetriesExhausted.WithLabelValues(o.cfg.Destination).Inc()
		}
		o.logger.Warn("retries exhausted",
			"originalMessageId", env.Binding.MessageID,
			"messageId", d.MessageID,
			"publishCount", env.PublishCount,
			"error", handlerErr)
		return &errors.MaxRetriesReachedError{
			OriginalID: env.Binding.MessageID,
			CurrentID:  d.MessageID,
		}
	}

	delay, err := backoff.Delay(o.cfg.Backoff, env.PublishCount-1)
	if err != nil {
		return err
	}

	scheduledAt := now.Add(delay)
	if ordering {
		scheduledAt = o.store.ScheduleAfterPending(sessionID, seq, scheduledAt, o.cfg.orderingIncrement())
	}

	ttl, err := o.remainingTTL(env.Binding, d.MessageID, now, scheduledAt)
	if err != nil {
		if ordering {
			o.store.Remove(sessionID, seq)
			o.updateSessionGauge()
		}
		if o.metrics != nil {
			o.metrics.MessagesExpired.WithLabelValues(o.cfg.Destination).Inc()
		}
		o.logger.Warn("message expired before retry could be scheduled",
			"originalMessageId", env.Binding.MessageID,
			"messageId", d.MessageID,
			"expiresAt", timestamp.Format(env.Binding.ExpiresAt))
		return err
	}

	next := env.Next()
	body, err := next.Encode()
	if err != nil {
		if ordering {
			o.store.Remove(sessionID, seq)
			o.updateSessionGauge()
		}
		return err
	}

	err = o.publisher.Schedule(ctx, OutboundMessage{
		Body:        body,
		ContentType: envelope.ContentType,
		ScheduledAt: scheduledAt,
		SessionID:   env.Binding.SessionID,
		TTL:         ttl,
	})
	if err != nil {
		if ordering {
			o.store.Remove(sessionID, seq)
			o.updateSessionGauge()
		}
		if o.metrics != nil {
			o.metrics.PublishErrors.WithLabelValues(o.cfg.Destination).Inc()
		}
		return errors.WrapTransient(err, "Orchestrator", "scheduleRetry")
	}

	o.updateSessionGauge()
	if o.metrics != nil {
		o.metrics.RetriesScheduled.WithLabelValues(o.cfg.Destination).Inc()
	}
	o.logger.Info("scheduled retry",
		"originalMessageId", env.Binding.MessageID,
		"messageId", d.MessageID,
		"publishCount", next.PublishCount,
		"delay", delay,
		"scheduledAt", timestamp.Format(scheduledAt),
		"error", handlerErr)
	return nil
}

func (o *Orchestrator) updateSessionGauge() {
	if o.metrics == nil {
		return
	}
	if ms, ok := o.store.(*sessionstore.MemoryStore); ok {
		o.metrics.SessionsTracked.Set(float64(ms.Sessions()))
	}
}
