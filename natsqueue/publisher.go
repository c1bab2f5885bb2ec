package natsqueue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/time/rate"

	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/pkg/timestamp"
	"github.com/c360/requeue/retrier"
)

// Message headers carried on republished deliveries. The Requeue-*
// headers hold scheduling and session state; Nats-TTL hands expiry
// enforcement to the server's per-message TTL support.
const (
	HeaderContentType    = "Content-Type"
	HeaderScheduledAt    = "Requeue-Scheduled-At"
	HeaderSessionID      = "Requeue-Session-Id"
	HeaderSequenceNumber = "Requeue-Session-Seq"
	HeaderExpiresAt      = "Requeue-Expires-At"

	headerMsgID  = "Nats-Msg-Id"
	headerMsgTTL = "Nats-TTL"
)

// Publisher republishes retry envelopes to a JetStream subject. It
// implements retrier.Publisher. JetStream has no native deferred
// delivery, so the scheduled time travels as a header and the consumer
// redelivers the message with NakWithDelay until it is due.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithPublishRateLimit caps republish throughput
func WithPublishRateLimit(limit rate.Limit, burst int) PublisherOption {
	return func(p *Publisher) { p.limiter = rate.NewLimiter(limit, burst) }
}

// WithPublisherLogger sets the structured logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher creates a publisher for the given subject
func NewPublisher(js jetstream.JetStream, subject string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		js:      js,
		subject: subject,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schedule publishes an outbound message with scheduling metadata in
// its headers. Failures are transient: the delivery that triggered the
// republish stays un-acked and will be redelivered.
func (p *Publisher) Schedule(ctx context.Context, msg retrier.OutboundMessage) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errors.WrapTransient(err, "Publisher", "Schedule")
		}
	}

	hdr := nats.Header{}
	hdr.Set(headerMsgID, uuid.NewString())
	if msg.ContentType != "" {
		hdr.Set(HeaderContentType, msg.ContentType)
	}
	if !msg.ScheduledAt.IsZero() {
		hdr.Set(HeaderScheduledAt, timestamp.Format(msg.ScheduledAt))
	}
	if msg.SessionID != "" {
		hdr.Set(HeaderSessionID, msg.SessionID)
	}
	if msg.TTL > 0 {
		hdr.Set(headerMsgTTL, msg.TTL.String())
	}

	_, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: p.subject,
		Header:  hdr,
		Data:    msg.Body,
	})
	if err != nil {
		return errors.WrapTransient(err, "Publisher", "Schedule")
	}

	p.logger.Debug("scheduled message published",
		"subject", p.subject,
		"scheduledAt", msg.ScheduledAt,
		"sessionId", msg.SessionID,
	)
	return nil
}
