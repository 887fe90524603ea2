package spdkio

import "testing"

// freshProcess lets a test observe a process in which no Env was ever
// initialized. The previous state is restored when the test ends.
func freshProcess(t *testing.T) {
	t.Helper()

	process.Lock()
	saved := process.state
	process.state = envUninitialized
	process.Unlock()

	t.Cleanup(func() {
		process.Lock()
		process.state = saved
		process.Unlock()
	})
}
