// Package runner executes job bodies on a worker pool.
//
// The scheduler decides WHETHER a job is due; the runner owns everything
// after that: queueing, per-attempt timeouts, retries with backoff, the
// production gate, history, and run lifecycle events.
package runner

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cronpoll/internal/eventbus"
	logx "cronpoll/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	queue  chan Task
	stopCh chan struct{}
	wg     sync.WaitGroup

	dropped atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{cfg: cfg, log: log, bus: bus}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	size := s.cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	// Fresh queue per run so a stop/start toggle doesn't execute stale work.
	s.queue = make(chan Task, size)

	stopCh := s.stopCh
	queue := s.queue
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in runner worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(ctx, stopCh, queue)
		}()
	}
	s.log.Info("runner started", logx.Int("workers", workers), logx.Int("queue", size))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.stopCh = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("runner stopped")
	case <-ctx.Done():
		// workers finish in background
	}
}

// Apply updates execution settings. Worker pool size takes effect on the
// next Start; retry/timeout/gate settings apply immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Enqueue hands a fired task to the worker pool. It never blocks: a full
// queue returns ErrQueueFull, and the overlap policy may return
// ErrOverlapSkip before anything is queued.
func (s *Service) Enqueue(t Task) error {
	s.mu.Lock()
	q := s.queue
	cfg := s.cfg
	s.mu.Unlock()
	if q == nil {
		return ErrStopped
	}

	t.Opt = t.Opt.withDefaults(cfg)
	if t.Timeout <= 0 {
		t.Timeout = cfg.DefaultTimeout
	}
	if t.Opt.Overlap == OverlapSkip && !t.State.tryAcquire() {
		s.log.Debug("run skipped (previous still in flight)", logx.String("job", t.Name))
		s.publish(eventbus.TopicRunSkipped, RunEvent{ID: t.ID, Name: t.Name, Started: time.Now()})
		return ErrOverlapSkip
	}

	select {
	case q <- t:
		return nil
	default:
		if t.Opt.Overlap == OverlapSkip {
			t.State.release()
		}
		s.dropped.Add(1)
		s.log.Warn("runner queue full; dropping run",
			logx.String("job", t.Name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	q := s.queue
	workers := s.cfg.Workers
	s.mu.Unlock()

	snap := Snapshot{Workers: workers, Dropped: s.dropped.Load()}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) publish(topic string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Time: time.Now(), Data: ev})
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	// Zero/negative history_size would mean unbounded growth; cap it.
	if size <= 0 {
		size = 200
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
}
