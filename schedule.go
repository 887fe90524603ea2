package spdkio

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/webriots/spdkio/internal/carrier"
)

// Schedule is a cooperative task scheduler bound to the carrier that
// created it. Tasks run one at a time; a task only gives up control by
// waiting for its children, yielding, or parking.
type Schedule struct {
	carrier carrier.ID

	mu     sync.Mutex
	runq   deque.Deque[*Task]
	live   map[*Task]struct{}
	signal chan struct{}

	flights flights
}

// NewSchedule creates a Schedule bound to the calling carrier.
func NewSchedule() *Schedule {
	return &Schedule{
		carrier: carrier.Current(),
		live:    make(map[*Task]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Resumable represents a function that can be resumed with a
// Schedule. It contains the function to be executed and a reference
// to the Schedule.
type Resumable struct {
	fn    func(context.Context, *Task)
	sched *Schedule
}

// Run creates a Resumable from a function that takes a context and a
// Task. The function will be executed when the Resumable is resumed.
func (s *Schedule) Run(fn func(context.Context, *Task)) *Resumable {
	return &Resumable{fn: fn, sched: s}
}

// Go creates a Resumable from a function that only takes a context.
func (s *Schedule) Go(fn func(context.Context)) *Resumable {
	return s.Run(s.Fn(fn))
}

// Resume runs the Resumable on the calling goroutine until the root task
// and all of its children have finished, or until ctx is done.
func (r *Resumable) Resume(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return loop(rctx, r.fn, r.sched)
}

// Fn adapts a context-only function to the Task-based function
// signature.
func (s *Schedule) Fn(fn func(context.Context)) func(context.Context, *Task) {
	return func(ctx context.Context, _ *Task) { fn(ctx) }
}

// ready queues t to be resumed by the loop. It is safe to call from any
// goroutine.
func (s *Schedule) ready(t *Task) {
	s.mu.Lock()
	s.runq.PushBack(t)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Schedule) next() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runq.Len() == 0 {
		return nil, false
	}
	return s.runq.PopFront(), true
}

func (s *Schedule) track(t *Task) {
	s.mu.Lock()
	s.live[t] = struct{}{}
	s.mu.Unlock()
}

func (s *Schedule) untrack(t *Task) {
	s.mu.Lock()
	delete(s.live, t)
	s.mu.Unlock()
}

// abort cancels every task that has not finished.
func (s *Schedule) abort() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.live))
	for t := range s.live {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}
