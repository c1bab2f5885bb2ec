// Package requeue provides retry-with-backoff orchestration on top of
// an at-least-once message queue.
//
// Queues like NATS JetStream redeliver failed messages, but they do
// not give per-message backoff schedules, bounded retry counts that
// survive republication, expiry that follows the original deadline, or
// per-session ordering across retries. Requeue layers those on the
// consumer side: a failed delivery is republished as a retry envelope
// carrying the original message identity and an attempt counter, and
// the envelope is unwrapped transparently before the handler runs
// again.
//
// # Packages
//
//	retrier       the orchestrator: restores envelopes, defers for
//	              session ordering, invokes the handler, schedules
//	              retries or declares a delivery expired or exhausted
//	envelope      the wire format wrapping payloads with retry state
//	backoff       fixed, linear and exponential delay computation with
//	              optional jitter
//	sessionstore  in-memory tracking of pending retries per session
//	natsqueue     JetStream client, publisher and consumer adapters
//	config        file configuration for the worker binary
//	metric        Prometheus instrumentation
//	errors        the error taxonomy shared by all packages
//
// # Library use
//
// The engine is transport neutral. Implement retrier.Publisher for
// your queue, build an orchestrator, and feed it deliveries:
//
//	orch, err := retrier.New(retrier.Config{
//		Destination: "orders",
//		MaxRetries:  5,
//		Backoff: backoff.Config{
//			Strategy:  backoff.StrategyExponential,
//			BaseDelay: time.Second,
//			MaxDelay:  time.Minute,
//		},
//	}, publisher)
//
//	result, err := orch.Process(ctx, delivery, handler)
//
// A nil error means the delivery is finished: either the handler
// succeeded or a retry was scheduled. Terminal errors (expired,
// retries exhausted, malformed envelope) mean the delivery should be
// dead-lettered.
//
// # Worker binary
//
// cmd/requeue runs the engine against configured JetStream streams,
// forwarding due payloads to downstream subjects and republishing
// failures with backoff.
package requeue
