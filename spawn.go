package spdkio

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// JoinHandle waits for a carrier started by Spawn.
type JoinHandle struct {
	name   string
	handle Handle
	done   chan struct{}
	err    error
}

// Spawn starts a new carrier, attaches a Thread named name to it and runs
// body there. Spawn returns once the Thread is attached, so attach errors
// are reported directly. When body returns the Thread is closed.
//
// A panic in body, including one raised by a message or poller it
// drives, terminates the Thread without draining it and is reported by
// Join as a *CarrierLostError.
func Spawn(env *Env, name string, body func(*Thread) error, opts ...ThreadOption) (*JoinHandle, error) {
	jh := &JoinHandle{name: name, done: make(chan struct{})}
	attached := make(chan error, 1)

	go func() {
		defer close(jh.done)

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var t *Thread
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			jh.err = &CarrierLostError{Thread: name, Value: p, Stack: debug.Stack()}
			if t != nil {
				t.log().WithField("panic", p).Error("spdkio: carrier lost")
				t.abandon()
			}
		}()

		var err error
		if t, err = Attach(env, name, opts...); err != nil {
			attached <- err
			return
		}
		jh.handle = t.Handle()
		attached <- nil

		err = body(t)
		jh.err = errors.Join(err, t.Close())
	}()

	if err := <-attached; err != nil {
		<-jh.done
		return nil, err
	}
	return jh, nil
}

func (jh *JoinHandle) Name() string {
	return jh.name
}

// Handle returns a handle to the spawned Thread.
func (jh *JoinHandle) Handle() Handle {
	return jh.handle
}

// Done is closed once the carrier has finished.
func (jh *JoinHandle) Done() <-chan struct{} {
	return jh.done
}

// Join waits for the carrier to finish and returns the error of its body
// and of closing its Thread, or a *CarrierLostError.
func (jh *JoinHandle) Join() error {
	<-jh.done
	return jh.err
}

// JoinContext is Join bounded by ctx.
func (jh *JoinHandle) JoinContext(ctx context.Context) error {
	select {
	case <-jh.done:
		return jh.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// JoinAll waits for every carrier and returns the first join error.
func JoinAll(handles ...*JoinHandle) error {
	var g errgroup.Group
	for _, jh := range handles {
		g.Go(jh.Join)
	}
	return g.Wait()
}
