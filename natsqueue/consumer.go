package natsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/pkg/timestamp"
	"github.com/c360/requeue/retrier"
)

const (
	defaultFetchBatch     = 16
	defaultFetchRetryWait = time.Second
)

// fetcher is the slice of jetstream.Consumer the pull loop needs.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer pulls deliveries from a JetStream consumer and runs each
// through the retry orchestrator. Messages whose scheduled time has
// not arrived yet are redelivered later with NakWithDelay; everything
// else is acked, termed or naked according to the outcome.
type Consumer struct {
	consumer fetcher
	orch     *retrier.Orchestrator
	handler  retrier.Handler

	workers        int
	batch          int
	fetchWait      time.Duration
	fetchRetryWait time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithWorkers sets the number of concurrent pull workers
func WithWorkers(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithFetchBatch sets the pull batch size
func WithFetchBatch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithConsumerLogger sets the structured logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// withConsumerClock overrides the due-time check in tests
func withConsumerClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) { c.now = now }
}

// withFetchRetryWait overrides the pause after a failed fetch in tests
func withFetchRetryWait(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.fetchRetryWait = d }
}

// NewConsumer creates a consumer that feeds the orchestrator
func NewConsumer(consumer fetcher, orch *retrier.Orchestrator, handler retrier.Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:       consumer,
		orch:           orch,
		handler:        handler,
		workers:        1,
		batch:          defaultFetchBatch,
		fetchWait:      5 * time.Second,
		fetchRetryWait: defaultFetchRetryWait,
		logger:         slog.Default(),
		now:            timestamp.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run pulls and processes messages until the context is cancelled. A
// fatal processing error stops all workers.
func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error { return c.worker(ctx) })
	}
	return g.Wait()
}

func (c *Consumer) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := c.consumer.Fetch(c.batch, jetstream.FetchMaxWait(c.fetchWait))
		if err != nil {
			c.logger.Warn("fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.fetchRetryWait):
			}
			continue
		}
		for msg := range batch.Messages() {
			if err := c.handle(ctx, msg); err != nil {
				return err
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("fetch batch ended with error", "error", err)
		}
	}
}

// handle processes one delivery. The returned error is non-nil only
// for fatal misconfiguration; everything else is resolved by acking,
// terming or naking the message.
func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) error {
	if wait := scheduledDelay(msg, c.now()); wait > 0 {
		if err := msg.NakWithDelay(wait); err != nil {
			c.logger.Warn("nak with delay failed", "error", err)
		}
		return nil
	}

	d := deliveryFromMsg(msg)
	_, err := c.orch.Process(ctx, d, c.handler)
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Warn("ack failed", "messageId", d.MessageID, "error", ackErr)
		}
	case errors.IsFatal(err):
		// Misconfiguration; leave the message for redelivery and stop.
		return err
	case errors.IsTerminal(err), errors.IsInvalid(err):
		// Dead end for this delivery; redelivering cannot help.
		c.logger.Error("delivery terminated", "messageId", d.MessageID, "error", err)
		if termErr := msg.TermWithReason(err.Error()); termErr != nil {
			c.logger.Warn("term failed", "messageId", d.MessageID, "error", termErr)
		}
	default:
		c.logger.Warn("delivery failed, redelivering", "messageId", d.MessageID, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("nak failed", "messageId", d.MessageID, "error", nakErr)
		}
	}
	return nil
}

// scheduledDelay returns how long until the message's scheduled time,
// or 0 when it is due (or carries no schedule).
func scheduledDelay(msg jetstream.Msg, now time.Time) time.Duration {
	at := timestamp.ParseTime(msg.Headers().Get(HeaderScheduledAt))
	if at.IsZero() || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}

// deliveryFromMsg maps NATS message headers and metadata onto the
// engine's transport-neutral delivery.
func deliveryFromMsg(msg jetstream.Msg) retrier.Delivery {
	hdr := msg.Headers()
	d := retrier.Delivery{
		Body:      msg.Data(),
		MessageID: hdr.Get(headerMsgID),
		SessionID: hdr.Get(HeaderSessionID),
		ExpiresAt: timestamp.ParseTime(hdr.Get(HeaderExpiresAt)),
	}
	if md, err := msg.Metadata(); err == nil {
		d.EnqueuedAt = md.Timestamp.UTC()
		if d.MessageID == "" {
			d.MessageID = fmt.Sprintf("%s:%d", msg.Subject(), md.Sequence.Stream)
		}
	}
	if s := hdr.Get(HeaderSequenceNumber); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			d.SequenceNumber = &n
		}
	}
	return d
}
