// Package main implements the requeue worker binary. It consumes
// configured JetStream streams, forwards due payloads to their
// downstream subjects, and republishes failed deliveries with backoff
// via the retry orchestrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/requeue/config"
	"github.com/c360/requeue/metric"
	"github.com/c360/requeue/natsqueue"
	"github.com/c360/requeue/retrier"
)

const (
	Version = "0.1.0"
	appName = "requeue"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, exit := parseFlags()
	if exit {
		return nil
	}

	logger := setupLogger(flags.logLevel, flags.logFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.validate {
		slog.Info("configuration is valid", "path", flags.configPath)
		return nil
	}

	slog.Info("starting requeue worker",
		"version", Version,
		"config_path", flags.configPath,
		"streams", len(cfg.Streams))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()

	client := natsqueue.NewClient(cfg.NATS.URL, clientOptions(cfg, registry, logger)...)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			slog.Warn("closing nats connection", "error", err)
		}
	}()

	js, err := client.JetStream()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	for name, stream := range cfg.Streams {
		consumer, err := buildConsumer(ctx, js, name, stream, registry, logger)
		if err != nil {
			return fmt.Errorf("stream %q: %w", name, err)
		}
		g.Go(func() error { return consumer.Run(ctx) })
		logger.Info("stream worker started",
			"destination", name,
			"stream", stream.Stream,
			"consumer", stream.Consumer,
			"workers", stream.Workers)
	}

	return g.Wait()
}

// buildConsumer wires one configured stream: JetStream consumer,
// republish publisher, orchestrator and the forwarding handler.
func buildConsumer(
	ctx context.Context,
	js jetstream.JetStream,
	name string,
	stream config.StreamConfig,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsqueue.Consumer, error) {
	if stream.ForwardSubject == "" {
		return nil, fmt.Errorf("forward_subject is required")
	}

	if _, err := js.Stream(ctx, stream.Stream); err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, fmt.Errorf("lookup stream: %w", err)
		}
		// Per-message TTL support is needed for expiry preservation
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        stream.Stream,
			Subjects:    []string{stream.Subject},
			AllowMsgTTL: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", err)
		}
	}

	jsConsumer, err := js.CreateOrUpdateConsumer(ctx, stream.Stream, jetstream.ConsumerConfig{
		Durable:       stream.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: stream.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	pubOpts := []natsqueue.PublisherOption{natsqueue.WithPublisherLogger(logger)}
	if stream.PublishRate > 0 {
		burst := stream.PublishBurst
		if burst < 1 {
			burst = 1
		}
		pubOpts = append(pubOpts, natsqueue.WithPublishRateLimit(rate.Limit(stream.PublishRate), burst))
	}
	publisher := natsqueue.NewPublisher(js, stream.Subject, pubOpts...)

	orch, err := retrier.New(stream.RetrierConfig(name), publisher,
		retrier.WithLogger(logger),
		retrier.WithMetrics(registry.CoreMetrics()))
	if err != nil {
		return nil, err
	}

	forward := stream.ForwardSubject
	handler := func(ctx context.Context, inv *retrier.Invocation) (any, error) {
		ack, err := js.Publish(ctx, forward, inv.Payload)
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", forward, err)
		}
		return ack, nil
	}

	return natsqueue.NewConsumer(jsConsumer, orch, handler,
		natsqueue.WithWorkers(stream.Workers),
		natsqueue.WithConsumerLogger(logger)), nil
}

// clientOptions maps the connection config onto client options
func clientOptions(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) []natsqueue.ClientOption {
	opts := []natsqueue.ClientOption{
		natsqueue.WithClientMetrics(registry.CoreMetrics()),
		natsqueue.WithClientLogger(logger),
	}
	name := cfg.NATS.Name
	if name == "" {
		name = appName
	}
	opts = append(opts, natsqueue.WithClientName(name))
	if cfg.NATS.Username != "" {
		opts = append(opts, natsqueue.WithUserCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsqueue.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.ReconnectWait.Std() > 0 {
		opts = append(opts, natsqueue.WithReconnectWait(cfg.NATS.ReconnectWait.Std()))
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsqueue.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	return opts
}
