package orchestrator

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// TurnResult describes how a turn's event stream ended.
type TurnResult int

const (
	// TurnRunning means the stream has not finished yet.
	TurnRunning TurnResult = iota
	// TurnAwaitingConfirmation means the pipeline paused for a decision.
	TurnAwaitingConfirmation
	// TurnCompleted means the pipeline produced and confirmed its final output.
	TurnCompleted
	// TurnIdle means the turn ended without running a stage.
	TurnIdle
	// TurnFailed means a stage failed; the session stays at that stage.
	TurnFailed
	// TurnCanceled means the session was ended during the turn.
	TurnCanceled
)

func (r TurnResult) String() string {
	switch r {
	case TurnRunning:
		return "running"
	case TurnAwaitingConfirmation:
		return "awaiting-confirmation"
	case TurnCompleted:
		return "completed"
	case TurnIdle:
		return "idle"
	case TurnFailed:
		return "failed"
	case TurnCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Turn is the event stream produced in response to one caller action. Events
// are handed over one at a time as the consumer pulls them; the producer
// blocks until then.
type Turn struct {
	ch chan Event

	// abandoned is closed when the consumer stops pulling.
	abandoned   chan struct{}
	abandonOnce sync.Once

	finishOnce sync.Once
	started    atomic.Bool
	result     atomic.Int32
}

func newTurn() *Turn {
	return &Turn{
		ch:        make(chan Event),
		abandoned: make(chan struct{}),
	}
}

// Events returns the turn's event sequence. The sequence can be ranged over
// once; later calls yield nothing. Breaking out of the range early releases
// the producer.
func (t *Turn) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !t.started.CompareAndSwap(false, true) {
			return
		}
		defer t.abandon()
		for ev := range t.ch {
			if !yield(ev) {
				return
			}
		}
	}
}

// Collect drains the turn into a slice.
func (t *Turn) Collect() []Event {
	var events []Event
	for ev := range t.Events() {
		events = append(events, ev)
	}
	return events
}

// Result reports how the stream ended. It is TurnRunning until the stream
// has been closed.
func (t *Turn) Result() TurnResult {
	return TurnResult(t.result.Load())
}

func (t *Turn) abandon() {
	t.abandonOnce.Do(func() { close(t.abandoned) })
}

// emit hands ev to the consumer. It reports false once the consumer has gone
// away or ctx is done; the event is dropped in that case.
func (t *Turn) emit(ctx context.Context, ev Event) bool {
	select {
	case t.ch <- ev:
		return true
	case <-t.abandoned:
		return false
	case <-ctx.Done():
		return false
	}
}

// finish records the result and closes the stream. Only the first call has
// an effect.
func (t *Turn) finish(r TurnResult) {
	t.finishOnce.Do(func() {
		t.result.Store(int32(r))
		close(t.ch)
	})
}

// closedTurn returns a turn that has already ended with r after emitting
// events. It is used for replies that need no driver.
func closedTurn(r TurnResult, events ...Event) *Turn {
	t := &Turn{
		ch:        make(chan Event, len(events)),
		abandoned: make(chan struct{}),
	}
	for _, ev := range events {
		t.ch <- ev
	}
	t.finish(r)
	return t
}
