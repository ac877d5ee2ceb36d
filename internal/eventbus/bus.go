// Package eventbus is a small in-memory fanout used to decouple the
// scheduler, runner, journal, and alerter.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by cronpoll components.
const (
	TopicJobFired      = "job.fired"      // trigger evaluator said yes
	TopicRunStarted    = "run.started"    // runner picked the job up
	TopicRunFinished   = "run.finished"   // job body returned nil
	TopicRunFailed     = "run.failed"     // job body failed after retries
	TopicRunSuppressed = "run.suppressed" // gate blocked execution
	TopicRunSkipped    = "run.skipped"    // overlap policy skipped the run
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; slow subscribers drop events.
//   - Data should be small (typically runner.RunEvent).
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so sends happen without holding the lock.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may unsubscribe (and close) concurrently; recover
		// covers the send-on-closed race.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
