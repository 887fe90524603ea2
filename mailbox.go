package spdkio

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// message is a closure queued for execution on a thread. cancel, when
// set, is called instead of run if the message is discarded.
type message struct {
	run    func()
	cancel func()
}

// mailbox is the part of a thread that other carriers may touch. It
// holds the identity, the lifecycle state and the message queue.
type mailbox struct {
	id    uint64
	name  string
	limit int
	exit  func()

	state atomic.Int32

	mu sync.Mutex
	q  deque.Deque[message]
}

func (m *mailbox) load() State {
	return State(m.state.Load())
}

func (m *mailbox) push(msg message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.load() == Terminated {
		return ErrCancelled
	}
	if m.limit > 0 && m.q.Len() >= m.limit {
		return ErrMessagePoolExhausted
	}
	m.q.PushBack(msg)
	return nil
}

func (m *mailbox) pop() (message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.q.Len() == 0 {
		return message{}, false
	}
	return m.q.PopFront(), true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}

// terminateIfEmpty moves an exiting mailbox to Terminated when its queue
// is empty. Holding the lock makes the check and the transition atomic
// with respect to push, so nothing is queued and then never run.
func (m *mailbox) terminateIfEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.q.Len() > 0 || m.load() != Exiting {
		return false
	}
	m.state.Store(int32(Terminated))
	return true
}

// abandon terminates the mailbox unconditionally and returns the
// messages that will never run.
func (m *mailbox) abandon() []message {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(int32(Terminated))
	dropped := make([]message, 0, m.q.Len())
	for m.q.Len() > 0 {
		dropped = append(dropped, m.q.PopFront())
	}
	return dropped
}

// Handle is a copyable reference to a thread that is safe to use from
// any carrier. It only allows queueing work; the thread itself stays
// with its owner.
//
// Messages sent through one Handle from one goroutine run in the order
// they were sent.
type Handle struct {
	m *mailbox
}

// Valid reports whether h refers to a thread.
func (h Handle) Valid() bool {
	return h.m != nil
}

func (h Handle) ID() uint64 {
	if h.m == nil {
		return 0
	}
	return h.m.id
}

func (h Handle) Name() string {
	if h.m == nil {
		return ""
	}
	return h.m.name
}

// State returns the last observed lifecycle state of the thread.
func (h Handle) State() State {
	if h.m == nil {
		return Terminated
	}
	return h.m.load()
}

// Send queues fn to run on the thread during a later Poll. It returns
// ErrCancelled without queueing if the thread has terminated.
func (h Handle) Send(fn func()) error {
	if h.m == nil {
		return ErrCancelled
	}
	return h.m.push(message{run: fn})
}

// RequestExit queues an exit request behind every message already sent
// through h.
func (h Handle) RequestExit() error {
	if h.m == nil {
		return ErrCancelled
	}
	return h.m.push(message{run: h.m.exit})
}

// Call runs fn on the thread behind h and returns a receiver for its
// result. The receiver resolves to ErrCancelled if fn is never run or
// panics.
func Call[T any](h Handle, fn func() T) *Receiver[T] {
	tx, rx := Completion[T]()
	msg := message{
		run: func() {
			defer tx.Cancel()
			tx.Fulfill(fn())
		},
		cancel: tx.Cancel,
	}
	if h.m == nil {
		tx.Cancel()
		return rx
	}
	switch err := h.m.push(msg); {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		tx.Cancel()
	default:
		tx.Fail(err)
	}
	return rx
}
