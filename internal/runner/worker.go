package runner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"cronpoll/internal/eventbus"
	logx "cronpoll/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, t Task) {
	start := time.Now()
	if t.Opt.Overlap == OverlapSkip {
		defer t.State.release()
	}

	s.mu.Lock()
	gate := s.cfg.Gate
	s.mu.Unlock()

	// Gate check: a denied run is journaled as suppressed and never
	// executed. The trigger already recorded the fire, so de-duplication
	// behaves identically either way.
	if gate != nil && !gate() {
		s.log.Info("run suppressed by gate", logx.String("job", t.Name))
		s.publish(eventbus.TopicRunSuppressed, RunEvent{ID: t.ID, Name: t.Name, Started: start})
		s.appendHistory(HistoryItem{ID: t.ID, Name: t.Name, Started: start, Suppressed: true})
		return
	}

	s.publish(eventbus.TopicRunStarted, RunEvent{ID: t.ID, Name: t.Name, Started: start})

	retries := t.Opt.RetryMax
	if retries < 0 {
		retries = 0
	}

	var err error
	attempts := 0
	maxAttempts := 1 + retries
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt doesn't poison retries.
		runCtx := ctx
		var cancel func()
		if t.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		}
		err = t.Run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(t.Opt, attempt)
		if delay > 0 {
			s.log.Debug("run retry scheduled",
				logx.String("job", t.Name), logx.Int("attempt", attempt+1),
				logx.Duration("delay", delay), logx.Err(err))
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				err = errors.Join(err, ErrStopped)
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, Duration: dur, Attempts: attempts}
	ev := RunEvent{ID: t.ID, Name: t.Name, Started: start, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		ev.Error = err.Error()
		s.log.Warn("run failed",
			logx.String("job", t.Name), logx.Err(err),
			logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish(eventbus.TopicRunFailed, ev)
	} else {
		// Keep frequent fast jobs at debug; slow completions are worth INFO.
		if dur >= 750*time.Millisecond {
			s.log.Info("run completed", logx.String("job", t.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			s.log.Debug("run completed", logx.String("job", t.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		s.publish(eventbus.TopicRunFinished, ev)
	}
	s.appendHistory(item)
}

func backoffDelay(opt TaskOptions, retry int) time.Duration {
	// retry starts at 1 (first retry)
	base := opt.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := opt.RetryMaxDelay
	if maxD <= 0 {
		maxD = 15 * time.Second
	}
	j := opt.RetryJitter

	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	// jitter [1-j, 1+j]
	if j > 0 {
		r := (randFloat64()*2 - 1) * j
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > maxD {
		d = maxD
	}
	return d
}

var rngMu sync.Mutex

func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rand.Float64()
}
