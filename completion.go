package spdkio

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// SlotState is the state of a completion slot.
type SlotState int32

const (
	Pending SlotState = iota
	Fulfilled
	Cancelled
)

func (s SlotState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type slot[T any] struct {
	state atomic.Int32
	done  chan struct{}
	val   T
	err   error

	mu      sync.Mutex
	waiters []func()

	// owner is the generation of the Sender that currently owns the slot.
	owner atomic.Uint64
}

func (s *slot[T]) resolve(state SlotState, val T, err error) bool {
	s.mu.Lock()
	if SlotState(s.state.Load()) != Pending {
		s.mu.Unlock()
		return false
	}
	s.val, s.err = val, err
	s.state.Store(int32(state))
	waiters := s.waiters
	s.waiters = nil
	close(s.done)
	s.mu.Unlock()

	for _, wake := range waiters {
		wake()
	}
	return true
}

func (s *slot[T]) notify(wake func()) {
	s.mu.Lock()
	if SlotState(s.state.Load()) == Pending {
		s.waiters = append(s.waiters, wake)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	wake()
}

func cancelSlot[T any](s *slot[T]) {
	var zero T
	s.resolve(Cancelled, zero, ErrCancelled)
}

type ownerRef[T any] struct {
	s   *slot[T]
	gen uint64
}

// dropSender cancels the slot of a collected Sender unless ownership
// moved to another Sender first.
func dropSender[T any](ref ownerRef[T]) {
	if ref.s.owner.Load() == ref.gen {
		cancelSlot(ref.s)
	}
}

// newSender makes a Sender the sole owner of s.
func newSender[T any](s *slot[T]) *Sender[T] {
	tx := new(Sender[T])
	tx.s.Store(s)
	runtime.AddCleanup(tx, dropSender[T], ownerRef[T]{s: s, gen: s.owner.Add(1)})
	return tx
}

// Completion returns a linked one-shot pair. The Sender resolves the
// Receiver exactly once; a Sender that is dropped without resolving
// cancels the Receiver when it is garbage collected.
func Completion[T any]() (*Sender[T], *Receiver[T]) {
	s := &slot[T]{done: make(chan struct{})}
	return newSender(s), &Receiver[T]{s: s}
}

// Sender is the resolving half of a completion. Every resolving method
// consumes it.
type Sender[T any] struct {
	s atomic.Pointer[slot[T]]
}

func (tx *Sender[T]) take() *slot[T] {
	s := tx.s.Swap(nil)
	if s == nil {
		panic("spdkio: completion sender already consumed")
	}
	return s
}

// Fulfill resolves the receiver with v. Calling it on a consumed sender
// panics.
func (tx *Sender[T]) Fulfill(v T) {
	tx.take().resolve(Fulfilled, v, nil)
}

// Fail resolves the receiver with err. Calling it on a consumed sender
// panics.
func (tx *Sender[T]) Fail(err error) {
	var zero T
	tx.take().resolve(Fulfilled, zero, err)
}

// Cancel resolves the receiver with ErrCancelled. Unlike Fulfill it is a
// no-op on a consumed sender, so it may be deferred.
func (tx *Sender[T]) Cancel() {
	if s := tx.s.Swap(nil); s != nil {
		cancelSlot(s)
	}
}

// Consumed reports whether the sender has been used.
func (tx *Sender[T]) Consumed() bool {
	return tx.s.Load() == nil
}

// Receiver is the awaiting half of a completion. Dropping it only
// discards interest in the result.
type Receiver[T any] struct {
	s *slot[T]
}

func (rx *Receiver[T]) State() SlotState {
	return SlotState(rx.s.state.Load())
}

// Done is closed once the receiver has resolved.
func (rx *Receiver[T]) Done() <-chan struct{} {
	return rx.s.done
}

// TryResult returns the result if the receiver has resolved.
func (rx *Receiver[T]) TryResult() (T, error, bool) {
	select {
	case <-rx.s.done:
		return rx.s.val, rx.s.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Wait blocks the calling goroutine until the receiver resolves or ctx
// is done. It must not be called on the carrier whose polling resolves
// the receiver; tasks on that carrier use Await.
func (rx *Receiver[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-rx.s.done:
		return rx.s.val, rx.s.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

// Await suspends the calling cooperative task until the receiver
// resolves. An already resolved receiver returns without suspending.
func (rx *Receiver[T]) Await(p Parker) (T, error) {
	for {
		select {
		case <-rx.s.done:
			return rx.s.val, rx.s.err
		default:
		}
		p.Park(rx.s.notify)
	}
}
