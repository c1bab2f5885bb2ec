package sessionstore

import (
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. A single mutex
// guards the whole map; contention per session is expected to be low,
// so the simplicity of one lock wins over a sharded set.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Entry),
	}
}

// LatestScheduledBefore implements Store.
func (s *MemoryStore) LatestScheduledBefore(sessionID string, seq int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(sessionID, seq)
}

// Add implements Store.
func (s *MemoryStore) Add(sessionID string, seq int64, scheduledAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(sessionID, seq, scheduledAt)
}

// Remove implements Store.
func (s *MemoryStore) Remove(sessionID string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	for i, e := range entries {
		if e.Sequence == seq {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		// Empty session keys do not exist
		delete(s.sessions, sessionID)
		return
	}
	s.sessions[sessionID] = entries
}

// Clear implements Store.
func (s *MemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// DeferAfterPending implements Store.
func (s *MemoryStore) DeferAfterPending(sessionID string, seq int64, now time.Time, increment time.Duration) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.latestLocked(sessionID, seq)
	if !ok || !latest.After(now) {
		return time.Time{}, false
	}
	deferred := latest.Add(increment)
	s.addLocked(sessionID, seq, deferred)
	return deferred, true
}

// ScheduleAfterPending implements Store.
func (s *MemoryStore) ScheduleAfterPending(sessionID string, seq int64, proposed time.Time, increment time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := proposed
	if latest, ok := s.latestLocked(sessionID, seq); ok && !latest.Before(proposed) {
		resolved = latest.Add(increment)
	}
	s.addLocked(sessionID, seq, resolved)
	return resolved
}

// Entries returns a snapshot of the session's entries, for tests and
// operational inspection.
func (s *MemoryStore) Entries(sessionID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[sessionID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Sessions returns the number of sessions with pending entries.
func (s *MemoryStore) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) latestLocked(sessionID string, seq int64) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, e := range s.sessions[sessionID] {
		if e.Sequence < seq && (!found || e.ScheduledAt.After(latest)) {
			latest = e.ScheduledAt
			found = true
		}
	}
	return latest, found
}

func (s *MemoryStore) addLocked(sessionID string, seq int64, scheduledAt time.Time) {
	s.sessions[sessionID] = append(s.sessions[sessionID], Entry{
		Sequence:    seq,
		ScheduledAt: scheduledAt,
	})
}
