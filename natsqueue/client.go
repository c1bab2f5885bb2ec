package natsqueue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/requeue/errors"
	"github.com/c360/requeue/metric"
)

// Client manages the NATS connection for the worker: connect options,
// reconnect callbacks, JetStream context, drain on close.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// Connection options
	clientName    string
	username      string
	password      string
	token         string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	metrics *metric.Metrics

	mu     sync.RWMutex
	closed atomic.Bool
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClientName sets the connection name visible in NATS monitoring
func WithClientName(name string) ClientOption {
	return func(c *Client) { c.clientName = name }
}

// WithUserCredentials sets username/password authentication
func WithUserCredentials(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithToken sets token authentication
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithMaxReconnects limits reconnection attempts (-1 = infinite)
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the wait between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) { c.reconnectWait = d }
}

// WithClientMetrics wires connection state into the engine metrics
func WithClientMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClientLogger sets the structured logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection and the JetStream context
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("nats disconnected", "error", err)
			if c.metrics != nil {
				c.metrics.NATSConnected.Set(0)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			if c.metrics != nil {
				c.metrics.NATSConnected.Set(1)
				c.metrics.NATSReconnects.Inc()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if c.metrics != nil {
				c.metrics.NATSConnected.Set(0)
			}
		}),
	}
	if c.clientName != "" {
		natsOpts = append(natsOpts, nats.Name(c.clientName))
	}
	if c.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		natsOpts = append(natsOpts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, natsOpts...)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "Client", "Connect")
	}

	c.conn = conn
	c.js = js
	if c.metrics != nil {
		c.metrics.NATSConnected.Set(1)
	}
	c.logger.Info("connected to nats", "url", conn.ConnectedUrl())
	return nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.ErrNotConnected
	}
	return c.js, nil
}

// IsConnected reports the connection state
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains the connection so in-flight messages complete before
// the process exits. Safe to call more than once.
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return errors.Wrap(err, "Client", "Close", "draining connection")
	}
	return nil
}
