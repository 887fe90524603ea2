package spdkio

// WaitGroup waits for a collection of cooperative tasks to finish. It is
// not safe for use across Schedules.
type WaitGroup struct {
	noCopy noCopy
	v      int32
	w      uint32
	sema   sema
}

// Add adds delta to the counter. Waiters are woken when it reaches zero;
// a negative counter panics.
func (wg *WaitGroup) Add(delta int) {
	wg.v += int32(delta)

	if wg.v < 0 {
		panic("spdkio: negative WaitGroup counter")
	}

	if wg.v > 0 || wg.w == 0 {
		return
	}

	for ; wg.w != 0; wg.w-- {
		wg.sema.release()
	}
}

func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait parks p until the counter is zero.
func (wg *WaitGroup) Wait(p Parker) {
	if wg.v == 0 {
		return
	}

	wg.w++
	wg.sema.acquire(p)
}
