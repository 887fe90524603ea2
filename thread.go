package spdkio

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/webriots/spdkio/internal/carrier"
)

// State is the lifecycle state of a Thread.
type State int32

const (
	Active State = iota
	Exiting
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ThreadOption configures a Thread at attach time.
type ThreadOption func(*threadOptions)

type threadOptions struct {
	maxMsgs int
	msgPool int
}

// WithThreadMaxMsgsPerPoll overrides the environment's per-poll message
// bound for one thread.
func WithThreadMaxMsgsPerPoll(n int) ThreadOption {
	return func(o *threadOptions) { o.maxMsgs = n }
}

// WithThreadMsgPoolSize overrides the environment's mailbox capacity for
// one thread. Zero means unbounded.
func WithThreadMsgPoolSize(n int) ThreadOption {
	return func(o *threadOptions) { o.msgPool = n }
}

// Thread is a lightweight scheduling context: a cooperative event loop
// with a message queue, a set of pollers and a channel cache. It is not
// an OS thread. A Thread belongs to the carrier that attached it and every
// method except Handle fails with ErrWrongCarrier elsewhere. Other
// carriers reach it through a Handle.
type Thread struct {
	noCopy noCopy

	env   *Env
	mbox  *mailbox
	owner carrier.ID
	tid   int

	maxMsgs  int
	pollers  pollerSet
	channels *channelCache
	polling  bool
	pinned   bool
	closeErr error
}

// Attach binds a new Thread to the calling carrier and locks the calling
// goroutine to its OS thread until the Thread terminates.
func Attach(env *Env, name string, opts ...ThreadOption) (*Thread, error) {
	if !env.Live() {
		return nil, initErr("environment is not initialized")
	}

	o := threadOptions{maxMsgs: env.cfg.MaxMsgsPerPoll, msgPool: env.cfg.MsgPoolSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.maxMsgs <= 0 {
		o.maxMsgs = DefaultMaxMsgsPerPoll
	}

	runtime.LockOSThread()

	t := &Thread{
		env:     env,
		owner:   carrier.Current(),
		tid:     carrier.OSThread(),
		maxMsgs: o.maxMsgs,
		pinned:  true,
	}
	t.mbox = &mailbox{name: name, limit: o.msgPool, exit: t.requestExit}
	t.channels = newChannelCache(t)

	if err := env.attach(t); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	t.log().Debug("spdkio: thread attached")
	return t, nil
}

func (t *Thread) checkCarrier() error {
	if c := carrier.Current(); c != t.owner {
		return fmt.Errorf("%w: thread %q is owned by %v, called from %v", ErrWrongCarrier, t.mbox.name, t.owner, c)
	}
	return nil
}

func (t *Thread) Name() string {
	return t.mbox.name
}

func (t *Thread) ID() uint64 {
	return t.mbox.id
}

func (t *Thread) State() State {
	return t.mbox.load()
}

// IsRunning reports whether the thread has not been asked to exit.
func (t *Thread) IsRunning() bool {
	return t.State() == Active
}

// IsIdle reports whether the thread has no queued messages and no
// pollers.
func (t *Thread) IsIdle() bool {
	return t.mbox.len() == 0 && t.pollers.len() == 0
}

func (t *Thread) HasPollers() bool {
	return t.pollers.len() > 0
}

// HasActivePollers is HasPollers; pollers have no timed variant.
func (t *Thread) HasActivePollers() bool {
	return t.HasPollers()
}

// Handle returns a cross-carrier reference to the thread.
func (t *Thread) Handle() Handle {
	return Handle{m: t.mbox}
}

// Poll executes up to the configured number of queued messages and then
// runs every poller once. It returns the units of work performed; zero
// means idle. A terminated thread returns 0 and ErrTerminated.
func (t *Thread) Poll() (int, error) {
	return t.PollMax(t.maxMsgs)
}

// PollMax is Poll with at most max messages executed. A max of zero or
// less uses the configured bound.
func (t *Thread) PollMax(max int) (int, error) {
	if err := t.checkCarrier(); err != nil {
		return 0, err
	}
	if t.State() == Terminated {
		return 0, ErrTerminated
	}
	if t.polling {
		return 0, ErrReentrantPoll
	}
	if max <= 0 {
		max = t.maxMsgs
	}

	t.polling = true
	defer func() { t.polling = false }()

	work := 0
	for work < max {
		msg, ok := t.mbox.pop()
		if !ok {
			break
		}
		msg.run()
		work++
	}

	busy := t.pollers.run()
	work += busy

	if t.State() == Exiting && busy == 0 && t.mbox.terminateIfEmpty() {
		t.terminate()
	}
	return work, nil
}

// Exit moves an active thread to Exiting. Later polls drain the queue and
// the pollers, then the thread terminates. Exiting twice is a no-op.
func (t *Thread) Exit() error {
	if err := t.checkCarrier(); err != nil {
		return err
	}
	switch t.State() {
	case Terminated:
		return ErrTerminated
	case Exiting:
		return nil
	}
	t.requestExit()
	return nil
}

func (t *Thread) requestExit() {
	if t.mbox.state.CompareAndSwap(int32(Active), int32(Exiting)) {
		t.log().Debug("spdkio: thread exiting")
	}
}

// Close exits the thread and polls it until it terminates. It returns
// the errors of closing cached channels, if any.
func (t *Thread) Close() error {
	if err := t.checkCarrier(); err != nil {
		return err
	}
	if t.State() == Terminated {
		t.unpin()
		return t.closeErr
	}
	t.requestExit()
	for {
		if _, err := t.Poll(); err != nil {
			if errors.Is(err, ErrTerminated) {
				t.unpin()
				return t.closeErr
			}
			return err
		}
	}
}

// Channel returns the thread's channel for dev, opening it with open on
// first use. Repeated calls for the same device return the same
// *IOChannel without calling open again.
func (t *Thread) Channel(dev DeviceID, open OpenFunc) (*IOChannel, error) {
	if err := t.checkCarrier(); err != nil {
		return nil, err
	}
	if t.State() == Terminated {
		return nil, ErrTerminated
	}
	return t.channels.getOrCreate(dev, open)
}

// Channels returns the number of cached channels.
func (t *Thread) Channels() int {
	return t.channels.len()
}

// RegisterPoller adds fn to the pollers run by every Poll.
func (t *Thread) RegisterPoller(name string, fn PollerFunc) (*Poller, error) {
	if err := t.checkCarrier(); err != nil {
		return nil, err
	}
	if t.State() == Terminated {
		return nil, ErrTerminated
	}
	p := &Poller{name: name, fn: fn, owner: t}
	t.pollers.list = append(t.pollers.list, p)
	return p, nil
}

// terminate releases everything the thread owns. It runs on the owning
// carrier once the mailbox is Terminated.
func (t *Thread) terminate() {
	t.pollers.reset()
	if err := t.channels.closeAll(); err != nil {
		t.closeErr = err
		t.log().WithError(err).Warn("spdkio: closing channels")
	}
	t.env.detach(t)
	t.unpin()
	t.log().Debug("spdkio: thread terminated")
}

// unpin releases the OS thread lock Attach took. Only the attaching
// goroutine can release it, so a thread that terminates inside a task is
// unpinned once control returns to that goroutine.
func (t *Thread) unpin() {
	if t.pinned && t.State() == Terminated && carrier.Goroutine() == uint64(t.owner) {
		t.pinned = false
		runtime.UnlockOSThread()
	}
}

// abandon terminates the thread without draining it, cancelling every
// queued message. It is used when the carrier is lost.
func (t *Thread) abandon() {
	if t.State() == Terminated {
		return
	}
	for _, msg := range t.mbox.abandon() {
		if msg.cancel != nil {
			msg.cancel()
		}
	}
	t.polling = false
	t.terminate()
}
