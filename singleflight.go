package spdkio

// flight is an in-progress keyed call shared by the tasks that asked for
// the same key while it ran.
type flight struct {
	wg   WaitGroup
	val  any
	err  error
	dups int
}

// flights coalesces keyed calls made by tasks of one Schedule. A task
// that asks for a key already in flight parks until the first caller's
// function returns and then shares its result.
type flights struct {
	m map[any]*flight
}

func (g *flights) do(task *Task, key any, fn func() (any, error)) (v any, err error, shared bool) {
	if g.m == nil {
		g.m = make(map[any]*flight)
	}

	if f, ok := g.m[key]; ok {
		f.dups++
		f.wg.Wait(task)
		return f.val, f.err, true
	}

	f := new(flight)
	f.wg.Add(1)
	g.m[key] = f

	g.call(f, key, fn)
	return f.val, f.err, f.dups > 0
}

func (g *flights) call(f *flight, key any, fn func() (any, error)) {
	defer func() {
		if g.m[key] == f {
			delete(g.m, key)
		}
		f.wg.Done()
	}()

	f.val, f.err = fn()
}
