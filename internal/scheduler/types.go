package scheduler

import (
	"context"
	"time"

	"cronpoll/internal/runner"
	"cronpoll/internal/trigger"
)

// Config controls the poll loop.
type Config struct {
	Enabled bool

	// PollInterval is the trigger evaluation cadence. Defaults to 60s.
	PollInterval time.Duration

	// Timezone is an IANA zone name; empty means the host's local time.
	// The clock is decomposed into calendar fields in this location.
	Timezone string
}

// JobOptions tunes per-job execution hand-off.
type JobOptions struct {
	// AllowOverlap permits enqueueing a run while the previous one is
	// still in flight. Default is to skip.
	AllowOverlap bool
}

// Executor receives due jobs. Implemented by *runner.Service.
type Executor interface {
	Enqueue(t runner.Task) error
}

type jobDef struct {
	id      string
	name    string
	expr    string
	timeout time.Duration
	opt     JobOptions

	eval  *trigger.Evaluator
	run   func(ctx context.Context) error
	state *runner.RunState
}

// JobInfo is a diagnostic view of one registered job.
type JobInfo struct {
	ID           string
	Name         string
	Expression   string
	Timeout      time.Duration
	LastFired    time.Time
	AllowOverlap bool
}

// FireEvent is the bus payload for job.fired.
type FireEvent struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

type Snapshot struct {
	Enabled      bool
	Timezone     string
	PollInterval time.Duration
	Jobs         []JobInfo
}
