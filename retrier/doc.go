// Package retrier implements the retry orchestration engine.
//
// An at-least-once queue redelivers a failed message immediately; this
// engine replaces that with retry-with-backoff semantics the queue does
// not provide natively. On handler failure the message is re-published
// wrapped in an envelope carrying an incremented publish count, scheduled
// after a computed backoff delay, optionally bounded by the original
// message deadline, and optionally held behind pending retries of earlier
// sequence numbers in the same session.
//
// One Process call handles exactly one delivery end-to-end:
//
//	Arrived -> {Deferred, Executing} -> {Succeeded, Retrying, Exhausted}
//
// The engine never sleeps out a delay - it republishes for later delivery
// and releases the worker immediately - and performs no internal
// concurrency. The injected sessionstore.Store is the only shared mutable
// state between concurrent Process calls.
//
// Expiry is evaluated lazily, only when a retry is about to be scheduled:
// a message technically past its deadline whose handler still succeeds is
// allowed to run to completion.
package retrier
