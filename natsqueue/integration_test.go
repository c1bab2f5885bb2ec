package natsqueue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/requeue/backoff"
	"github.com/c360/requeue/retrier"
)

// Helper function to start NATS container with JetStream
func startNATSContainerWithJS(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js", "-m", "8222"}, // Enable JetStream and monitoring
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)

	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	natsURL := fmt.Sprintf("nats://%s:%s", host, port.Port())

	// Wait for NATS to be fully ready
	time.Sleep(200 * time.Millisecond)

	return natsContainer, natsURL
}

func setupStream(ctx context.Context, t *testing.T, js jetstream.JetStream) jetstream.Consumer {
	stream, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        "ORDERS",
		Subjects:    []string{"orders.>"},
		AllowMsgTTL: true,
	})
	require.NoError(t, err)

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   "orders-worker",
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   5 * time.Second,
	})
	require.NoError(t, err)
	return consumer
}

// TestIntegration_ConnectAndClose verifies the connection lifecycle
// against a real server.
func TestIntegration_ConnectAndClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, natsURL := startNATSContainerWithJS(ctx, t)
	defer container.Terminate(ctx)

	client := NewClient(natsURL, WithClientName("requeue-test"))
	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())

	js, err := client.JetStream()
	require.NoError(t, err)
	assert.NotNil(t, js)

	require.NoError(t, client.Close(ctx))
	// Second close is a no-op
	require.NoError(t, client.Close(ctx))
}

// TestIntegration_RetryRoundTrip runs the full loop: a delivery fails,
// a retry envelope is republished with a schedule header, the consumer
// delays it until due, and the second attempt succeeds.
func TestIntegration_RetryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, natsURL := startNATSContainerWithJS(ctx, t)
	defer container.Terminate(ctx)

	client := NewClient(natsURL)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	js, err := client.JetStream()
	require.NoError(t, err)
	jsConsumer := setupStream(ctx, t, js)

	publisher := NewPublisher(js, "orders.retry")
	orch, err := retrier.New(retrier.Config{
		Destination: "orders",
		MaxRetries:  3,
		Backoff: backoff.Config{
			Strategy:  backoff.StrategyFixed,
			BaseDelay: time.Second,
		},
	}, publisher)
	require.NoError(t, err)

	var attempts atomic.Int32
	done := make(chan struct{})
	handler := func(_ context.Context, inv *retrier.Invocation) (any, error) {
		n := attempts.Add(1)
		if n == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		assert.Equal(t, 2, inv.PublishCount)
		close(done)
		return "ok", nil
	}

	consumer := NewConsumer(jsConsumer, orch, handler, WithWorkers(2))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go consumer.Run(runCtx)

	_, err = js.Publish(ctx, "orders.new", []byte(`{"order":"o-1"}`))
	require.NoError(t, err)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("retry round trip did not complete")
	}
	assert.Equal(t, int32(2), attempts.Load())
}

// TestIntegration_ExhaustionTermsDelivery verifies a delivery that
// keeps failing stops after MaxRetries republications.
func TestIntegration_ExhaustionTermsDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, natsURL := startNATSContainerWithJS(ctx, t)
	defer container.Terminate(ctx)

	client := NewClient(natsURL)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	js, err := client.JetStream()
	require.NoError(t, err)
	jsConsumer := setupStream(ctx, t, js)

	publisher := NewPublisher(js, "orders.retry")
	orch, err := retrier.New(retrier.Config{
		Destination: "orders",
		MaxRetries:  1,
		Backoff: backoff.Config{
			Strategy:  backoff.StrategyFixed,
			BaseDelay: 200 * time.Millisecond,
		},
	}, publisher)
	require.NoError(t, err)

	var attempts atomic.Int32
	handler := func(_ context.Context, _ *retrier.Invocation) (any, error) {
		attempts.Add(1)
		return nil, fmt.Errorf("permanent failure")
	}

	consumer := NewConsumer(jsConsumer, orch, handler, WithWorkers(1))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go consumer.Run(runCtx)

	_, err = js.Publish(ctx, "orders.new", []byte(`{"order":"o-2"}`))
	require.NoError(t, err)

	// First delivery fails and republishes once; the retry fails and
	// is termed when MaxRetries is exceeded. No third attempt follows.
	require.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, 30*time.Second, 200*time.Millisecond)

	time.Sleep(2 * time.Second)
	assert.Equal(t, int32(2), attempts.Load())
}
