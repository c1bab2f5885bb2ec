package retrier

import (
	"time"

	"github.com/c360/requeue/envelope"
	"github.com/c360/requeue/errors"
)

// remainingTTL is the expiry guard. Given the binding data captured at
// first delivery and the instant the retry would be delivered, it
// returns the time-to-live to stamp on the republished message, or
// MessageExpiredError when the original deadline cannot be met. A zero
// TTL means "no expiry recorded or preservation disabled": the
// republished message inherits the destination's default.
//
// The TTL is measured from now, not from the delivery instant, so the
// chain of retries always dies at the original deadline no matter how
// many hops occurred.
func (o *Orchestrator) remainingTTL(binding envelope.BindingData, currentID string, now, deliverAt time.Time) (time.Duration, error) {
	if !o.cfg.preserveExpiry() || binding.ExpiresAt.IsZero() {
		return 0, nil
	}
	if !binding.ExpiresAt.After(deliverAt) {
		return 0, &errors.MessageExpiredError{
			OriginalID: binding.MessageID,
			CurrentID:  currentID,
		}
	}
	return binding.ExpiresAt.Sub(now), nil
}
