package app

import (
	"testing"
	"time"

	"cronpoll/internal/eventbus"
	"cronpoll/internal/runner"
	"cronpoll/internal/storage"
)

func TestJournalRecord(t *testing.T) {
	t.Parallel()
	started := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	ev := runner.RunEvent{ID: "cron:1", Name: "backup", Started: started, Duration: 1200 * time.Millisecond, Attempts: 2, Error: "exit status 1"}

	tests := []struct {
		name       string
		event      eventbus.Event
		want       bool
		ok         bool
		suppressed bool
	}{
		{name: "finished", event: eventbus.Event{Topic: eventbus.TopicRunFinished, Data: ev}, want: true, ok: true},
		{name: "failed", event: eventbus.Event{Topic: eventbus.TopicRunFailed, Data: ev}, want: true},
		{name: "suppressed", event: eventbus.Event{Topic: eventbus.TopicRunSuppressed, Data: ev}, want: true, suppressed: true},
		{name: "skipped is not journaled", event: eventbus.Event{Topic: eventbus.TopicRunSkipped, Data: ev}},
		{name: "fired is not journaled", event: eventbus.Event{Topic: eventbus.TopicJobFired, Data: ev}},
		{name: "foreign payload", event: eventbus.Event{Topic: eventbus.TopicRunFinished, Data: "nope"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec, got := journalRecord(tt.event)
			if got != tt.want {
				t.Fatalf("journalRecord = %v, want %v", got, tt.want)
			}
			if !got {
				return
			}
			if rec.Job != "backup" || rec.DurationMS != 1200 || rec.Attempts != 2 {
				t.Fatalf("unexpected record: %+v", rec)
			}
			if rec.OK != tt.ok || rec.Suppressed != tt.suppressed {
				t.Fatalf("record flags = (ok=%v, suppressed=%v), want (%v, %v)", rec.OK, rec.Suppressed, tt.ok, tt.suppressed)
			}
		})
	}
}

func TestJournalRecordZeroStartFallsBackToEventTime(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	rec, ok := journalRecord(eventbus.Event{
		Topic: eventbus.TopicRunFailed,
		Time:  at,
		Data:  runner.RunEvent{Name: "backup"},
	})
	if !ok || !rec.At.Equal(at) {
		t.Fatalf("At = %v, want %v", rec.At, at)
	}
}

func TestSummarizeRuns(t *testing.T) {
	t.Parallel()
	recs := []storage.RunRecord{
		{Job: "a", OK: true},
		{Job: "b"},
		{Job: "c", Suppressed: true},
		{Job: "d", OK: true},
		{Job: "e", OK: true, Suppressed: true}, // suppressed wins
	}
	ok, failed, suppressed := summarizeRuns(recs)
	if ok != 2 || failed != 1 || suppressed != 2 {
		t.Fatalf("summarizeRuns = (%d, %d, %d), want (2, 1, 2)", ok, failed, suppressed)
	}
}
