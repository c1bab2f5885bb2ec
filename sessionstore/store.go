// Package sessionstore tracks retries pending within a session so that
// rescheduled messages approximately preserve per-session sequence order.
//
// When a failed message is pulled out of the queue and reinserted later,
// messages behind it in the same session would otherwise overtake it. The
// store remembers "a retry for sequence N in session S is scheduled at T";
// the orchestrator consults it to push later sequence numbers behind
// pending earlier ones.
//
// The store is process-local with no durability: its contents are discarded
// on restart. That is an accepted limitation of the ordering feature, not a
// bug - ordering is approximate by design.
package sessionstore

import (
	"time"
)

// Entry records a pending reschedule for one sequence number.
type Entry struct {
	Sequence    int64
	ScheduledAt time.Time
}

// Store is the ordering coordinator consulted by the orchestrator. All
// operations must be safe under concurrent invocation from multiple
// in-flight handler executions.
//
// DeferAfterPending and ScheduleAfterPending are composite operations:
// each executes its read-decide-write sequence atomically under the
// store's lock, so two concurrent invocations for the same session can
// never both observe "no pending earlier entry" and race to publish out
// of order.
type Store interface {
	// LatestScheduledBefore returns the maximum scheduled time among
	// entries in the session with a sequence number lower than seq.
	LatestScheduledBefore(sessionID string, seq int64) (time.Time, bool)

	// Add appends an entry. Multiple entries for the same sequence
	// number may coexist transiently (a message can be rescheduled more
	// than once before completing); they are reconciled only by Remove.
	Add(sessionID string, seq int64, scheduledAt time.Time)

	// Remove drops the first entry matching seq. Removing an absent
	// entry is a silent no-op: duplicate completions are expected under
	// at-least-once delivery.
	Remove(sessionID string, seq int64)

	// Clear drops every entry for a session. Administrative use.
	Clear(sessionID string)

	// DeferAfterPending checks whether an earlier sequence number has a
	// reschedule still in the future. If so it records seq at that time
	// plus increment and returns the recorded time with ok=true;
	// otherwise it records nothing and returns ok=false.
	DeferAfterPending(sessionID string, seq int64, now time.Time, increment time.Duration) (time.Time, bool)

	// ScheduleAfterPending resolves the schedule for a failure-driven
	// retry of seq: proposed, pushed to latest-pending-earlier plus
	// increment when that is later. The resolved time is recorded and
	// returned.
	ScheduleAfterPending(sessionID string, seq int64, proposed time.Time, increment time.Duration) time.Time
}
