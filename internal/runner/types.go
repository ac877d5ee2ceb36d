package runner

import (
	"context"
	"sync"
	"time"
)

// Config controls the execution engine.
type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
	RetryMax       int

	// Gate reports whether job bodies may actually execute. A nil gate
	// allows everything. When the gate denies, the run is journaled as
	// suppressed — it still counts as fired for trigger de-duplication,
	// which happened upstream in the evaluator.
	Gate func() bool
}

type OverlapPolicy int

const (
	// OverlapSkip drops a new run while the previous one is still in
	// flight (or queued). Default.
	OverlapSkip OverlapPolicy = iota
	OverlapAllow
)

type TaskOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	if o.RetryMax <= 0 {
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

// RunState tracks whether a task is already queued or executing. OverlapSkip
// treats "already queued" the same as "running", which prevents queue
// blow-ups when a trigger fires faster than execution drains.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// Task is one unit of work handed over by the scheduler when a trigger fires.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	State   *RunState
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	Duration   time.Duration
	Attempts   int
	Error      string
	Suppressed bool
}

// RunEvent is the bus payload for run lifecycle events.
type RunEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
	History  []HistoryItem
}
