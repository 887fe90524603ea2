package spdkio

import "context"

// Group runs child tasks and keeps the first error any of them returns.
// The first error cancels the context shared by the group's tasks.
type Group struct {
	task   *Task
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     WaitGroup
	err    error
}

func newGroup(task *Task) *Group {
	ctx, cancel := context.WithCancelCause(task.ctx)
	return &Group{task: task, ctx: ctx, cancel: cancel}
}

// Go starts f as a child of the group's task.
func (g *Group) Go(f func(context.Context, *Task) error) {
	g.wg.Add(1)
	g.task.gogoctx(g.ctx, func(ctx context.Context, task *Task) {
		defer g.wg.Done()
		if err := f(ctx, task); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
}

// Wait parks the group's task until every task in the group has finished
// and returns the first error. It must be called from the group's task.
func (g *Group) Wait() error {
	g.wg.Wait(g.task)
	g.cancel(g.err)
	return g.err
}
