package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cronpoll/internal/cron"
	"cronpoll/internal/eventbus"
	"cronpoll/internal/runner"
	"cronpoll/internal/trigger"
	logx "cronpoll/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	clock trigger.Clock
	bus   eventbus.Bus
	exec  Executor

	defs []*jobDef

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates the scheduler. A nil clock means the system clock.
func New(cfg Config, log logx.Logger, bus eventbus.Bus, exec Executor, clock trigger.Clock) *Service {
	if clock == nil {
		clock = trigger.SystemClock()
	}
	s := &Service{cfg: cfg, log: log, bus: bus, exec: exec, clock: clock}
	s.loc = s.loadLocationLocked()
	return s
}

// Enabled reports the current config flag. (Thread-safe; Apply may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// AddJob parses expr and registers (upserting by name) a job evaluated on
// every poll. A malformed expression fails only this registration; other
// jobs keep their evaluators.
func (s *Service) AddJob(name, expr string, timeout time.Duration, opt JobOptions, run func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	sched, err := cron.Parse(expr)
	if err != nil {
		s.log.Error("job registration failed", logx.String("job", name), logx.String("schedule", expr), logx.Err(err))
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name: drop any previous definition so hot reloads and
	// repeated registrations don't duplicate fires.
	s.removeLocked(name)

	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	s.defs = append(s.defs, &jobDef{
		id:      id,
		name:    name,
		expr:    expr,
		timeout: timeout,
		opt:     opt,
		eval:    trigger.NewEvaluator(sched),
		run:     run,
		state:   &runner.RunState{},
	})
	s.log.Debug("job registered",
		logx.String("job", name), logx.String("id", id),
		logx.String("schedule", expr), logx.Duration("timeout", timeout))
	return id, nil
}

// Remove unregisters all jobs with the given name. It returns true if
// something was removed. Safe to call while stopped.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("job removed", logx.String("job", name))
	}
	return removed
}

// removeLocked removes defs matching name. Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	stopCh := s.stopCh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, stopCh)
	}()
	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Duration("poll", s.pollIntervalLocked()),
		logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// loop exits in background
	}
}

// Apply updates poll settings at runtime. A timezone change takes effect on
// the next poll; registered jobs are untouched.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if strings.TrimSpace(cfg.Timezone) != oldTZ {
		s.loc = s.loadLocationLocked()
		s.log.Info("scheduler timezone changed", logx.String("tz", s.loc.String()))
	}
}

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		s.mu.Lock()
		interval := s.pollIntervalLocked()
		s.mu.Unlock()

		tmr := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return
		case <-stopCh:
			tmr.Stop()
			return
		case <-tmr.C:
			s.pollOnce()
		}
	}
}

// pollOnce reads the clock once and evaluates every registered job against
// that instant. Evaluation happens under s.mu, which together with the
// single loop goroutine preserves the evaluators' single-writer invariant.
func (s *Service) pollOnce() {
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	now := s.clock.Now().In(loc)

	var due []*jobDef
	for _, d := range s.defs {
		if d.eval.Evaluate(now) {
			due = append(due, d)
		}
	}
	exec := s.exec
	s.mu.Unlock()

	for _, d := range due {
		s.log.Info("job due", logx.String("job", d.name), logx.Time("at", now))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Topic: eventbus.TopicJobFired,
				Time:  now,
				Data:  FireEvent{ID: d.id, Name: d.name, At: now},
			})
		}
		if exec == nil {
			continue
		}
		opt := runner.TaskOptions{Overlap: runner.OverlapSkip}
		if d.opt.AllowOverlap {
			opt.Overlap = runner.OverlapAllow
		}
		err := exec.Enqueue(runner.Task{
			ID:      d.id,
			Name:    d.name,
			Timeout: d.timeout,
			Run:     d.run,
			Opt:     opt,
			State:   d.state,
		})
		if err != nil && !errors.Is(err, runner.ErrOverlapSkip) {
			s.log.Warn("job hand-off failed", logx.String("job", d.name), logx.Err(err))
		}
	}
}

func (s *Service) pollIntervalLocked() time.Duration {
	if s.cfg.PollInterval > 0 {
		return s.cfg.PollInterval
	}
	return time.Minute
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
