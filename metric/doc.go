// Package metric provides Prometheus metrics for the requeue engine.
//
// The engine records one counter per retry outcome (scheduled, deferred,
// expired, exhausted), a handler duration histogram labeled by status, and
// connection gauges for the NATS adapter, all under the "requeue"
// namespace. MetricsRegistry wraps a private prometheus.Registry with the
// Go runtime collectors pre-registered; Server exposes it over HTTP for
// scraping.
package metric
