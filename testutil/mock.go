// Package testutil provides test doubles for the requeue engine.
package testutil

import (
	"context"
	"sync"

	"github.com/c360/requeue/retrier"
)

// MockPublisher records every scheduled message for verification.
// Thread-safe for concurrent use from multiple goroutines.
type MockPublisher struct {
	mu sync.Mutex

	// ScheduleErr, when set, is returned by every Schedule call
	ScheduleErr error

	published []retrier.OutboundMessage
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Schedule implements retrier.Publisher.
func (p *MockPublisher) Schedule(_ context.Context, msg retrier.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ScheduleErr != nil {
		return p.ScheduleErr
	}
	p.published = append(p.published, msg)
	return nil
}

// Published returns a copy of all successfully scheduled messages.
func (p *MockPublisher) Published() []retrier.OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]retrier.OutboundMessage, len(p.published))
	copy(out, p.published)
	return out
}

// Last returns the most recently scheduled message, or false when
// nothing has been published.
func (p *MockPublisher) Last() (retrier.OutboundMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.published) == 0 {
		return retrier.OutboundMessage{}, false
	}
	return p.published[len(p.published)-1], true
}

// Count returns the number of scheduled messages.
func (p *MockPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// Reset clears the recorded messages.
func (p *MockPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = nil
}
