package spdkio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// attach attaches a thread to the test goroutine and closes it when the
// test ends.
func attach(t *testing.T, name string, opts ...ThreadOption) *Thread {
	t.Helper()

	th, err := Attach(testEnv, name, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if th.State() != Terminated {
			_ = th.Close()
		}
	})
	return th
}

// fakeDisk is a poll-driven device: submissions complete on the next
// run of its poller through ForeignCallback, like a foreign engine.
type fakeDisk struct {
	pending   []fakeOp
	completed int
}

type fakeOp struct {
	status int32
	arg    Opaque
}

func (d *fakeDisk) submit(status int32) *Receiver[struct{}] {
	tx, rx := Completion[struct{}]()
	d.pending = append(d.pending, fakeOp{status: status, arg: tx.Leak()})
	return rx
}

func (d *fakeDisk) poll() bool {
	if len(d.pending) == 0 {
		return false
	}
	ops := d.pending
	d.pending = nil
	for _, op := range ops {
		ForeignCallback(op.status, op.arg)
		d.completed++
	}
	return true
}

// fakeChannel records whether it was closed.
type fakeChannel struct {
	dev    DeviceID
	closed int
	err    error
}

func (c *fakeChannel) Close() error {
	c.closed++
	return c.err
}

// opener counts how often it opens a channel per device.
type opener struct {
	opened map[DeviceID]int
	chans  []*fakeChannel
	err    error
}

func (o *opener) open(dev DeviceID) (Channel, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.opened == nil {
		o.opened = make(map[DeviceID]int)
	}
	o.opened[dev]++
	ch := &fakeChannel{dev: dev}
	o.chans = append(o.chans, ch)
	return ch, nil
}

// pollUntil polls th until cond holds or the thread terminates.
func pollUntil(t *testing.T, th *Thread, cond func() bool) {
	t.Helper()
	for i := 0; i < 1_000_000 && !cond(); i++ {
		if _, err := th.Poll(); err != nil {
			require.ErrorIs(t, err, ErrTerminated)
			return
		}
	}
	require.True(t, cond())
}
