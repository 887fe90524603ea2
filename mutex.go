package spdkio

// Mutex is a lock for cooperative tasks of one Schedule. Waiting tasks
// park instead of blocking the carrier.
type Mutex struct {
	noCopy noCopy
	locked bool
	sema   sema
}

// Lock acquires m, parking p while another task holds it.
func (m *Mutex) Lock(p Parker) {
	if !m.locked {
		m.locked = true
		return
	}
	m.sema.acquire(p)
}

// Unlock releases m, handing it to the longest waiting task if any.
func (m *Mutex) Unlock() {
	if !m.locked {
		panic("spdkio: unlock of unlocked Mutex")
	}
	if m.sema.waiting() == 0 {
		m.locked = false
		return
	}
	m.sema.release()
}

// WaitCount returns the number of tasks waiting for m.
func (m *Mutex) WaitCount() int {
	return m.sema.waiting()
}
