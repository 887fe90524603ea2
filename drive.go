package spdkio

import (
	"context"
	"errors"
)

// Yielder suspends the calling cooperative task once, letting the host
// scheduler run other tasks before resuming it.
type Yielder interface {
	Yield()
}

// YieldFunc adapts a function such as runtime.Gosched to Yielder.
type YieldFunc func()

func (f YieldFunc) Yield() { f() }

// Parker suspends the calling cooperative task until the wake function
// handed to register is called. wake may be called from any goroutine,
// and may be called before register returns.
type Parker interface {
	Park(register func(wake func()))
}

// Drive is the driving loop of t: it polls t and yields to y whenever a
// poll reports no work. It returns nil once t has terminated. Drive must
// run on t's carrier and be its only caller of Poll.
func Drive(t *Thread, y Yielder) error {
	for {
		n, err := t.Poll()
		switch {
		case errors.Is(err, ErrTerminated):
			return nil
		case err != nil:
			return err
		case n == 0 && t.State() != Terminated:
			y.Yield()
		}
	}
}

// Run drives t on a new Schedule bound to the calling carrier. fn, if
// not nil, runs as a task beside the driving loop; when it and its
// children finish the thread is asked to exit. With a nil fn the thread
// runs until an exit is requested through a Handle. Run returns once the
// thread has terminated.
func (t *Thread) Run(ctx context.Context, fn func(context.Context, *Task)) error {
	if err := t.checkCarrier(); err != nil {
		return err
	}
	defer t.unpin()

	var derr error
	err := NewSchedule().Run(func(ctx context.Context, root *Task) {
		root.Gogo(func(_ context.Context, task *Task) {
			task.Log("DRIVE")
			derr = Drive(t, task)
		})
		if fn != nil {
			root.Gogo(func(ctx context.Context, task *Task) {
				fn(ctx, task)
				task.Wait()
				_ = t.Exit()
			})
		}
	}).Resume(ctx)

	return errors.Join(derr, err)
}
