package spdkio

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"

	"github.com/webriots/coro"

	"github.com/webriots/spdkio/internal/carrier"
)

const (
	taskTraceTaskType   = "spdkio-task"
	taskTraceRegionType = "spdkio-region"
	taskTraceCategory   = "spdkio"
)

// Task is a coroutine run by a Schedule. It implements Yielder and
// Parker, so it can drive a Thread and await receivers.
type Task struct {
	ctx     context.Context
	suspend func() struct{}
	resume  func(struct{}) (struct{}, bool)
	cancel  func()
	sched   *Schedule
	parent  *Task
	childn  int
	norun   bool
	done    bool
}

func loop(
	ctx context.Context,
	fn func(context.Context, *Task),
	sched *Schedule,
) error {
	var tracer *trace.Task

	ctx, tracer = trace.NewTask(ctx, taskTraceTaskType)
	defer tracer.End()

	program := func(ctx context.Context, task *Task) {
		fn(ctx, task)
		task.Wait()
	}

	t := newTask(ctx, program, nil, sched)
	defer sched.abort()

	trace.Logf(ctx, taskTraceCategory, "LOOP")

	for t.resumez(); !t.done; {
		task, ok := sched.next()
		if !ok {
			trace.Log(ctx, taskTraceCategory, "LOOP IDLE")
			select {
			case <-sched.signal:
			case <-ctx.Done():
				return context.Cause(ctx)
			}
			continue
		}
		task.setnorun(false)
		task.run()
	}

	if t.childn > 0 {
		panic("spdkio: task.childn > 0")
	}

	trace.Log(ctx, taskTraceCategory, "LOOP DONE")
	return nil
}

func newTask(
	ctx context.Context,
	fn func(context.Context, *Task),
	parent *Task,
	sched *Schedule,
) *Task {
	task := &Task{parent: parent, sched: sched}
	if parent != nil {
		parent.childn++
	}

	task.ctx = withTaskContext(ctx, task)

	resume, cancel := coro.New(
		func(_ func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
			leave := carrier.Enter(task.sched.carrier)
			region := trace.StartRegion(task.ctx, taskTraceRegionType)

			defer func() {
				task.done = true
				task.sched.untrack(task)
				if task.parent != nil {
					task.parent.childn--
				}
				region.End()
				leave()
			}()

			task.suspend = suspend

			fn(task.ctx, task)

			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	sched.track(task)
	return task
}

func (t *Task) gogoctx(ctx context.Context, fn func(context.Context, *Task)) {
	task := newTask(ctx, fn, t, t.sched)
	task.Log("GO")
	task.resumez()
}

// Gogo starts a child task that runs until its first suspension before
// Gogo returns.
func (t *Task) Gogo(fn func(context.Context, *Task)) {
	t.gogoctx(t.ctx, fn)
}

// Go is Gogo for a function that does not need its Task.
func (t *Task) Go(fn func(context.Context)) {
	t.Gogo(t.sched.Fn(fn))
}

// Group returns a group whose tasks are children of t.
func (t *Task) Group() *Group {
	return newGroup(t)
}

// Wait suspends t until all of its children have finished.
func (t *Task) Wait() {
	t.Log("WAIT")

	if t.childn > 0 {
		t.suspend()
	}
}

// Yield requeues t behind every other runnable task.
func (t *Task) Yield() {
	t.setnorun(true)
	t.sched.ready(t)
	t.suspend()
}

// Park suspends t until the wake function passed to register is called.
func (t *Task) Park(register func(wake func())) {
	t.Log("PARK")
	t.setnorun(true)
	register(t.wake)
	t.suspend()
}

func (t *Task) wake() {
	t.sched.ready(t)
}

// Do runs fn once for every set of tasks of the Schedule that ask for
// key while it is in flight, typically around an awaited completion such
// as a read of the same block. shared reports whether the result went to
// more than one task.
func (t *Task) Do(key any, fn func() (any, error)) (v any, err error, shared bool) {
	return t.sched.flights.do(t, key, fn)
}

// Context returns the task's context.
func (t *Task) Context() context.Context {
	return t.ctx
}

func (t *Task) run() {
	t.Log("RUN")

	if _, ok := t.resume(struct{}{}); ok {
		return
	}

	if t.parent == nil {
		return
	}

	if t.parent.norun {
		return
	}

	if t.parent.childn == 0 {
		t.parent.run()
	}
}

func (t *Task) resumez() bool {
	_, ok := t.resume(struct{}{})
	return ok
}

func (t *Task) setnorun(b bool) {
	t.norun = b
}

func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *Task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	fmt.Fprintf(sb, "%p|", t)
}
