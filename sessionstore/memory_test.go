package sessionstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestLatestScheduledBefore(t *testing.T) {
	s := NewMemoryStore()
	s.Add("sess", 5, base.Add(10*time.Second))
	s.Add("sess", 3, base.Add(30*time.Second))
	s.Add("sess", 12, base.Add(99*time.Second))

	latest, ok := s.LatestScheduledBefore("sess", 10)
	require.True(t, ok)
	assert.Equal(t, base.Add(30*time.Second), latest)

	// Only entries with strictly lower sequence numbers count
	_, ok = s.LatestScheduledBefore("sess", 3)
	assert.False(t, ok)

	_, ok = s.LatestScheduledBefore("other", 10)
	assert.False(t, ok)
}

func TestRemove_FirstMatchOnly(t *testing.T) {
	s := NewMemoryStore()
	// Duplicate entries for the same sequence may coexist transiently
	s.Add("sess", 5, base)
	s.Add("sess", 5, base.Add(time.Minute))

	s.Remove("sess", 5)
	entries := s.Entries("sess")
	require.Len(t, entries, 1)
	assert.Equal(t, base.Add(time.Minute), entries[0].ScheduledAt)

	s.Remove("sess", 5)
	assert.Empty(t, s.Entries("sess"))
	// Session key removed eagerly once empty
	assert.Zero(t, s.Sessions())
}

func TestRemove_AbsentIsNoOp(t *testing.T) {
	s := NewMemoryStore()
	assert.NotPanics(t, func() {
		s.Remove("ghost", 1)
	})

	s.Add("sess", 1, base)
	s.Remove("sess", 99)
	assert.Len(t, s.Entries("sess"), 1)
}

func TestClear(t *testing.T) {
	s := NewMemoryStore()
	s.Add("sess", 1, base)
	s.Add("sess", 2, base)

	s.Clear("sess")
	assert.Empty(t, s.Entries("sess"))

	assert.NotPanics(t, func() {
		s.Clear("ghost")
	})
}

func TestDeferAfterPending(t *testing.T) {
	s := NewMemoryStore()
	increment := time.Second

	// Nothing pending: no deferral, nothing recorded
	_, ok := s.DeferAfterPending("sess", 10, base, increment)
	assert.False(t, ok)
	assert.Empty(t, s.Entries("sess"))

	// Pending entry in the past: no deferral
	s.Add("sess", 5, base.Add(-time.Minute))
	_, ok = s.DeferAfterPending("sess", 10, base, increment)
	assert.False(t, ok)

	// Pending entry in the future: defer behind it and record
	pending := base.Add(time.Minute)
	s.Add("sess", 7, pending)
	deferred, ok := s.DeferAfterPending("sess", 10, base, increment)
	require.True(t, ok)
	assert.Equal(t, pending.Add(increment), deferred)
	assert.Len(t, s.Entries("sess"), 3)

	// Higher sequence numbers never defer lower ones
	_, ok = s.DeferAfterPending("sess", 5, base, increment)
	assert.False(t, ok)
}

func TestScheduleAfterPending(t *testing.T) {
	s := NewMemoryStore()
	increment := time.Second

	// No pending earlier entries: proposed time wins and is recorded
	proposed := base.Add(5 * time.Second)
	resolved := s.ScheduleAfterPending("sess", 10, proposed, increment)
	assert.Equal(t, proposed, resolved)
	require.Len(t, s.Entries("sess"), 1)

	// A later pending entry for a lower sequence pushes the schedule
	pendingAt := base.Add(time.Minute)
	s.Add("sess", 5, pendingAt)
	resolved = s.ScheduleAfterPending("sess", 10, proposed, increment)
	assert.Equal(t, pendingAt.Add(increment), resolved)

	// A pending entry exactly at the proposed time also pushes
	s2 := NewMemoryStore()
	s2.Add("sess", 5, proposed)
	resolved = s2.ScheduleAfterPending("sess", 10, proposed, increment)
	assert.Equal(t, proposed.Add(increment), resolved)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			s.Add("sess", seq, base.Add(time.Duration(seq)*time.Second))
			s.ScheduleAfterPending("sess", seq+100, base, time.Second)
			s.LatestScheduledBefore("sess", seq)
			s.Remove("sess", seq)
		}(int64(i))
	}
	wg.Wait()

	// Every Add was matched by a Remove; only the ScheduleAfterPending
	// entries remain.
	assert.Len(t, s.Entries("sess"), 50)
}
