// Package spdkio is a safety layer over a callback-driven, user-space
// I/O engine whose execution model is built on cooperative, single-owner
// scheduling contexts rather than OS threads.
//
// Key components:
//
//   - Env: the process-wide environment guard. At most one is ever
//     initialized per process and its teardown is permanent.
//
//   - Thread: a scheduling context bound to exactly one carrier (a
//     goroutine locked to an OS thread). It owns a message queue, a set
//     of pollers and a per-device channel cache, and is advanced only by
//     Poll on its own carrier.
//
//   - Handle: a copyable, cross-carrier reference to a Thread that can
//     only queue work on it (Send, Call, RequestExit).
//
//   - Sender/Receiver: a one-shot completion pair bridging one foreign
//     callback invocation into an awaitable result. Leak and
//     ForeignCallback carry a Sender across the foreign boundary.
//
//   - Drive: the driving loop that polls a Thread and yields to the
//     host cooperative scheduler when idle. Any scheduler implementing
//     Yielder and Parker can host it.
//
//   - Schedule/Task: a coroutine based cooperative scheduler, with
//     Mutex, WaitGroup and Group, usable as that host.
//
// A typical carrier:
//
//	jh, err := spdkio.Spawn(env, "worker", func(t *spdkio.Thread) error {
//		return t.Run(ctx, nil)
//	})
//	...
//	n, err := spdkio.Call(jh.Handle(), func() int { return 42 }).Wait(ctx)
//	_ = jh.Handle().RequestExit()
//	err = jh.Join()
package spdkio
