// Package natsqueue adapts the retry engine to NATS JetStream.
//
// The Client manages the connection lifecycle, the Publisher
// republishes retry envelopes, and the Consumer pulls deliveries and
// drives them through the orchestrator. JetStream has no native
// deferred delivery, so scheduled times are carried in a message
// header and not-yet-due deliveries are redelivered with NakWithDelay.
// Per-message expiry uses the server's Nats-TTL support.
package natsqueue
