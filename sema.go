package spdkio

import "github.com/gammazero/deque"

// sema is a counting semaphore for cooperative tasks of one Schedule.
// Waiters are woken in FIFO order and the released unit is handed to
// the woken waiter directly.
type sema struct {
	noCopy noCopy
	v      uint32
	w      deque.Deque[func()]
}

func (s *sema) acquire(p Parker) {
	if s.v > 0 {
		s.v--
		return
	}
	p.Park(func(wake func()) { s.w.PushBack(wake) })
}

func (s *sema) release() {
	if s.w.Len() == 0 {
		s.v++
		return
	}
	wake := s.w.PopFront()
	wake()
}

func (s *sema) waiting() int {
	return s.w.Len()
}
