package spdkio

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompletionFulfill(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	r.Equal(Pending, rx.State())
	r.False(tx.Consumed())

	_, _, ok := rx.TryResult()
	r.False(ok)

	tx.Fulfill(7)
	r.True(tx.Consumed())
	r.Equal(Fulfilled, rx.State())

	v, err := rx.Wait(context.Background())
	r.NoError(err)
	r.Equal(7, v)

	v, err, ok = rx.TryResult()
	r.True(ok)
	r.NoError(err)
	r.Equal(7, v)
}

func TestCompletionSecondResolutionPanics(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	tx.Fulfill(1)

	r.PanicsWithValue("spdkio: completion sender already consumed", func() { tx.Fulfill(2) })
	r.Panics(func() { tx.Fail(errors.New("late")) })
	r.NotPanics(tx.Cancel)

	v, err := rx.Wait(context.Background())
	r.NoError(err)
	r.Equal(1, v)
}

func TestCompletionCancel(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[string]()
	tx.Cancel()
	tx.Cancel()

	r.Equal(Cancelled, rx.State())
	_, err := rx.Wait(context.Background())
	r.ErrorIs(err, ErrCancelled)
	r.Panics(func() { tx.Fulfill("late") })
}

func TestCompletionFail(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	tx, rx := Completion[int]()
	tx.Fail(boom)

	r.Equal(Fulfilled, rx.State())
	_, err := rx.Wait(context.Background())
	r.ErrorIs(err, boom)
}

func TestCompletionWaitTimeout(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	defer tx.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := rx.Wait(ctx)
	r.ErrorIs(err, context.DeadlineExceeded)
	r.Equal(Pending, rx.State())
}

func TestCompletionCrossGoroutine(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	go func() {
		time.Sleep(time.Millisecond)
		tx.Fulfill(42)
	}()

	select {
	case <-rx.Done():
	case <-time.After(5 * time.Second):
		r.Fail("receiver did not resolve")
	}
	v, err := rx.Wait(context.Background())
	r.NoError(err)
	r.Equal(42, v)
}

func receiverWithDroppedSender() *Receiver[int] {
	_, rx := Completion[int]()
	return rx
}

func TestCompletionDroppedSenderCancels(t *testing.T) {
	r := require.New(t)

	rx := receiverWithDroppedSender()
	r.Eventually(func() bool {
		runtime.GC()
		return rx.State() == Cancelled
	}, 5*time.Second, 10*time.Millisecond)

	_, err := rx.Wait(context.Background())
	r.ErrorIs(err, ErrCancelled)
}

func TestAwaitResolvedDoesNotPark(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	tx.Fulfill(5)

	var p parkCounter
	v, err := rx.Await(&p)
	r.NoError(err)
	r.Equal(5, v)
	r.Zero(p.parks)
}

func TestAwaitInTask(t *testing.T) {
	r := require.New(t)

	tx, rx := Completion[int]()
	got := 0
	steps := []string{}

	err := NewSchedule().Run(func(_ context.Context, task *Task) {
		task.Gogo(func(_ context.Context, task *Task) {
			steps = append(steps, "await")
			v, err := rx.Await(task)
			r.NoError(err)
			got = v
			steps = append(steps, "resumed")
		})
		steps = append(steps, "parked")
		go tx.Fulfill(9)
	}).Resume(context.Background())

	r.NoError(err)
	r.Equal(9, got)
	r.Equal([]string{"await", "parked", "resumed"}, steps)
}

type parkCounter struct {
	parks int
}

func (p *parkCounter) Park(register func(wake func())) {
	p.parks++
	done := make(chan struct{})
	register(func() { close(done) })
	<-done
}

func TestSlotStateString(t *testing.T) {
	r := require.New(t)

	r.Equal("pending", Pending.String())
	r.Equal("fulfilled", Fulfilled.String())
	r.Equal("cancelled", Cancelled.String())
	r.Equal("unknown", SlotState(7).String())
}
