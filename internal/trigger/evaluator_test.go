package trigger

import (
	"testing"
	"time"

	"cronpoll/internal/cron"
)

// 2024-01-01 is a Monday.
var monday9 = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func TestEvaluateFiresOnceWithinWindow(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(cron.MustParse("0 9 * * 1"))

	if !e.Evaluate(monday9) {
		t.Fatal("first matching poll must fire")
	}
	if got := e.LastFired(); !got.Equal(monday9) {
		t.Fatalf("LastFired = %v, want %v", got, monday9)
	}

	// 30s later the schedule still matches but the window suppresses it.
	if e.Evaluate(monday9.Add(30 * time.Second)) {
		t.Fatal("fire inside dedup window")
	}
	if got := e.LastFired(); !got.Equal(monday9) {
		t.Fatal("suppressed poll must not touch LastFired")
	}

	// 65s later the window has elapsed but minute 1 no longer matches.
	if e.Evaluate(monday9.Add(65 * time.Second)) {
		t.Fatal("fire outside schedule match")
	}
}

func TestEvaluateGuardDominatesScheduleMatch(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(cron.MustParse("* * * * *"))

	if !e.Evaluate(monday9) {
		t.Fatal("first poll must fire")
	}
	// Exactly at the window boundary the guard still suppresses (<=).
	if e.Evaluate(monday9.Add(DedupWindow)) {
		t.Fatal("boundary poll must be suppressed (window is inclusive)")
	}
	// One second past the boundary it re-arms.
	if !e.Evaluate(monday9.Add(DedupWindow + time.Second)) {
		t.Fatal("poll past the window must fire again")
	}
}

func TestEvaluateRearmsNextWeek(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(cron.MustParse("0 9 * * 1"))

	if !e.Evaluate(monday9) {
		t.Fatal("first Monday must fire")
	}
	nextMonday := monday9.AddDate(0, 0, 7)
	if !e.Evaluate(nextMonday) {
		t.Fatal("following Monday must fire again")
	}
	if got := e.LastFired(); !got.Equal(nextMonday) {
		t.Fatalf("LastFired = %v, want %v", got, nextMonday)
	}
}

func TestEvaluateLastFiredStrictlyIncreases(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(cron.MustParse("* * * * *"))

	prev := time.Time{}
	at := monday9
	for i := 0; i < 5; i++ {
		if !e.Evaluate(at) {
			t.Fatalf("poll %d must fire", i)
		}
		if !e.LastFired().After(prev) {
			t.Fatalf("LastFired did not increase at poll %d", i)
		}
		prev = e.LastFired()
		at = at.Add(2 * time.Minute)
	}
}

func TestSystemClock(t *testing.T) {
	t.Parallel()
	before := time.Now().Add(-time.Second)
	now := SystemClock().Now()
	if now.Before(before) {
		t.Fatalf("SystemClock went backwards: %v", now)
	}
}
