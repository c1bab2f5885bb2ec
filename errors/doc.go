// Package errors provides standardized error handling patterns for the requeue engine.
//
// # Overview
//
// The errors package defines two things: the closed set of terminal engine
// errors that escape a message-handling invocation, and a three-class error
// classification system (Transient, Invalid, Fatal) used by adapters to make
// redelivery decisions without error string matching.
//
// # Terminal engine errors
//
// Exactly three error types terminate a logical message rather than a single
// delivery attempt:
//
//   - UnknownStrategyError: the backoff configuration names a strategy the
//     calculator does not implement. Fatal and surfaced immediately.
//   - MessageExpiredError: the message's original deadline has passed at the
//     moment a retry would be scheduled. Carries the original and current
//     message ids as structured fields.
//   - MaxRetriesReachedError: the retry budget is exhausted. Same structure.
//
// All three are allowed to escape the orchestrator so the host runtime's
// native failure path (typically dead-lettering) takes over. Match them
// programmatically with errors.As or the IsMessageExpired, IsMaxRetriesReached
// and IsUnknownStrategy predicates; IsTerminal covers the whole set.
//
// # Error Classification
//
//   - Transient: temporary failures such as a publish that timed out (retry
//     the delivery)
//   - Invalid: malformed envelopes, expired or exhausted messages (do not
//     retry; dead-letter)
//   - Fatal: bad configuration, unknown strategies (stop processing)
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	errors.Wrap(err, "Orchestrator", "Process", "republishing envelope")
//	// -> "Orchestrator.Process: republishing envelope failed: <cause>"
//
// WrapTransient, WrapInvalid and WrapFatal additionally attach a
// classification that Classify and the Is* predicates honor through
// wrapping chains.
package errors
