// Package trigger decides, on each poll, whether a job is due right now.
//
// An Evaluator pairs an immutable cron schedule with the timestamp of its
// last fire. The de-duplication window keeps a schedule with one-minute
// granularity from firing repeatedly for the whole matching minute when the
// caller polls more often than once a minute.
package trigger

import (
	"time"

	"cronpoll/internal/cron"
)

// DedupWindow is the span after a fire during which further fires are
// suppressed even if the schedule still matches. Fixed by design: it bounds
// the poll cadence, not the other way round.
const DedupWindow = 60 * time.Second

// Evaluator holds the only mutable state in the scheduling core: the last
// fired timestamp for one job.
//
// Not safe for concurrent use. The poll loop owns each evaluator exclusively
// (single writer); there is deliberately no internal locking.
type Evaluator struct {
	schedule  *cron.Schedule
	lastFired time.Time
}

// NewEvaluator creates an evaluator for a parsed schedule.
func NewEvaluator(s *cron.Schedule) *Evaluator {
	return &Evaluator{schedule: s}
}

// Evaluate reports whether the job should fire at now.
//
// The de-duplication guard dominates: within DedupWindow of the previous
// fire the answer is false regardless of schedule match. Outside the window
// the five schedule fields are matched against now, and on a match
// Evaluate records now as the last fire before returning true.
//
// Evaluate never fails; a successfully parsed schedule is always evaluable.
func (e *Evaluator) Evaluate(now time.Time) bool {
	if !e.lastFired.IsZero() && now.Sub(e.lastFired) <= DedupWindow {
		return false
	}
	if !e.schedule.Matches(now) {
		return false
	}
	e.lastFired = now
	return true
}

// Schedule returns the evaluator's immutable schedule.
func (e *Evaluator) Schedule() *cron.Schedule { return e.schedule }

// LastFired returns the timestamp of the most recent fire, or the zero time
// if the evaluator has never fired. In-memory only: a process restart loses
// it, which can duplicate a fire within one window. Accepted trade-off —
// callers needing stronger guarantees must make job bodies idempotent.
func (e *Evaluator) LastFired() time.Time { return e.lastFired }
