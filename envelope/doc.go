// Package envelope defines the wire format that carries retry state across
// re-publications.
//
// A message that fails its handler is not redelivered in place; it is
// re-published wrapped in an envelope recording how many times the logical
// message has been published and the immutable binding data captured at
// first delivery. The envelope is plain JSON:
//
//	{
//	  "kind": "retry",
//	  "payload": <opaque handler input>,
//	  "originalBindingData": {
//	    "messageId": "...", "enqueuedAt": "...", "expiresAt": "...",
//	    "sessionId": "...", "sequenceNumber": 7
//	  },
//	  "publishCount": 2
//	}
//
// The kind tag makes envelope detection explicit instead of duck-typed:
// tagged bodies are schema-validated and rejected when malformed, while
// bodies without the tag (and without a plausible publishCount) are treated
// as raw first deliveries and passed to the handler untouched.
package envelope
