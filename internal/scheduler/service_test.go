package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cronpoll/internal/cron"
	"cronpoll/internal/runner"
	logx "cronpoll/pkg/logx"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeExec struct{ tasks []runner.Task }

func (e *fakeExec) Enqueue(t runner.Task) error {
	e.tasks = append(e.tasks, t)
	return nil
}

// 2024-01-01 is a Monday.
var monday9 = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func noop(ctx context.Context) error { return nil }

func newTestService(clock *fakeClock, exec Executor) *Service {
	return New(Config{Enabled: true, PollInterval: 30 * time.Second, Timezone: "UTC"}, logx.Nop(), nil, exec, clock)
}

func TestAddJobMalformedScheduleFailsOnlyThatJob(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeClock{now: monday9}, &fakeExec{})

	if _, err := s.AddJob("good", "0 9 * * 1", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob(good): %v", err)
	}

	_, err := s.AddJob("bad", "0 9 * *", 0, JobOptions{}, noop)
	var merr *cron.MalformedScheduleError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *cron.MalformedScheduleError", err)
	}

	snap := s.Snapshot()
	if len(snap.Jobs) != 1 || snap.Jobs[0].Name != "good" {
		t.Fatalf("registry corrupted by failed registration: %+v", snap.Jobs)
	}
}

func TestAddJobUpsertsByName(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeClock{now: monday9}, &fakeExec{})

	if _, err := s.AddJob("report", "0 9 * * 1", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if _, err := s.AddJob("report", "0 10 * * 1", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob (upsert): %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Jobs) != 1 {
		t.Fatalf("expected 1 job after upsert, got %d", len(snap.Jobs))
	}
	if snap.Jobs[0].Expression != "0 10 * * 1" {
		t.Fatalf("upsert kept stale expression %q", snap.Jobs[0].Expression)
	}
}

func TestPollFiresDueJobOnce(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: monday9}
	exec := &fakeExec{}
	s := newTestService(clock, exec)

	if _, err := s.AddJob("report", "0 9 * * 1", time.Minute, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.pollOnce()
	if len(exec.tasks) != 1 {
		t.Fatalf("expected 1 hand-off, got %d", len(exec.tasks))
	}
	if exec.tasks[0].Name != "report" || exec.tasks[0].Timeout != time.Minute {
		t.Fatalf("unexpected task: %+v", exec.tasks[0])
	}

	// 30s later: schedule still matches, dedup window suppresses.
	clock.now = monday9.Add(30 * time.Second)
	s.pollOnce()
	if len(exec.tasks) != 1 {
		t.Fatal("fired again inside dedup window")
	}

	// 65s later: window elapsed, minute no longer matches.
	clock.now = monday9.Add(65 * time.Second)
	s.pollOnce()
	if len(exec.tasks) != 1 {
		t.Fatal("fired outside schedule match")
	}

	// Next Monday 09:00: fires again.
	clock.now = monday9.AddDate(0, 0, 7)
	s.pollOnce()
	if len(exec.tasks) != 2 {
		t.Fatalf("expected re-fire next week, got %d hand-offs", len(exec.tasks))
	}

	snap := s.Snapshot()
	if got := snap.Jobs[0].LastFired; !got.Equal(clock.now) {
		t.Fatalf("LastFired = %v, want %v", got, clock.now)
	}
}

func TestPollEvaluatesJobsIndependently(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: monday9}
	exec := &fakeExec{}
	s := newTestService(clock, exec)

	if _, err := s.AddJob("monday", "0 9 * * 1", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if _, err := s.AddJob("sunday", "0 9 * * 0", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.pollOnce()
	if len(exec.tasks) != 1 || exec.tasks[0].Name != "monday" {
		t.Fatalf("expected only monday to fire, got %+v", exec.tasks)
	}
}

func TestPollHonoursTimezone(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: monday9} // 09:00 UTC
	exec := &fakeExec{}
	s := New(Config{Enabled: true, Timezone: "America/New_York"}, logx.Nop(), nil, exec, clock)

	// 09:00 UTC is 04:00 in New York; an 09:00 schedule must not fire.
	if _, err := s.AddJob("report", "0 9 * * *", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.pollOnce()
	if len(exec.tasks) != 0 {
		t.Fatal("fired in the wrong timezone")
	}

	// 14:00 UTC is 09:00 in New York (EST).
	clock.now = monday9.Add(5 * time.Hour)
	s.pollOnce()
	if len(exec.tasks) != 1 {
		t.Fatal("expected fire at 09:00 local")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeClock{now: monday9}, &fakeExec{})
	if _, err := s.AddJob("report", "0 9 * * 1", 0, JobOptions{}, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if !s.Remove("report") {
		t.Fatal("Remove returned false for registered job")
	}
	if s.Remove("report") {
		t.Fatal("Remove returned true for missing job")
	}
	if len(s.Snapshot().Jobs) != 0 {
		t.Fatal("job still present after Remove")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, PollInterval: 10 * time.Millisecond}, logx.Nop(), nil, &fakeExec{}, &fakeClock{now: monday9})
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // idempotent
	time.Sleep(30 * time.Millisecond)
	s.Stop(ctx)
	s.Stop(ctx) // idempotent
}
