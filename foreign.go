package spdkio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Opaque is the pointer-sized context argument handed to a foreign
// submission. It owns the sender it was leaked from until the foreign
// callback reclaims it, and must not be used after that.
type Opaque uintptr

// statusCompleter is implemented by every *Sender[T] so that the single
// foreign callback can resolve senders of any result type.
type statusCompleter interface {
	completeStatus(status int32)
}

func (tx *Sender[T]) completeStatus(status int32) {
	if status != 0 {
		tx.Fail(&ForeignOperationError{Status: status})
		return
	}
	var zero T
	tx.Fulfill(zero)
}

var opaques struct {
	next atomic.Uintptr
	m    sync.Map // Opaque -> any (*Sender[T])
}

// Leak moves ownership of tx into an Opaque token for exactly one foreign
// call. tx is consumed: resolving or leaking it again panics, and only
// ForeignCallback or Reclaim can reach the slot afterwards.
func (tx *Sender[T]) Leak() Opaque {
	s := tx.s.Swap(nil)
	if s == nil {
		panic("spdkio: leaking a consumed completion sender")
	}
	arg := Opaque(opaques.next.Add(1))
	opaques.m.Store(arg, newSender(s))
	return arg
}

// Reclaim takes back the sender behind arg. The returned Sender is not
// the one Leak was called on; it is the token's own owner. It reports false if arg is
// unknown, already reclaimed, or of another result type; in the last
// case arg stays owned by the table.
func Reclaim[T any](arg Opaque) (*Sender[T], bool) {
	v, ok := opaques.m.Load(arg)
	if !ok {
		return nil, false
	}
	tx, ok := v.(*Sender[T])
	if !ok {
		return nil, false
	}
	if !opaques.m.CompareAndDelete(arg, v) {
		return nil, false
	}
	return tx, true
}

// MustReclaim is like Reclaim but panics on a double reclaim, which in a
// foreign callback means the engine invoked it twice.
func MustReclaim[T any](arg Opaque) *Sender[T] {
	tx, ok := Reclaim[T](arg)
	if !ok {
		panic(fmt.Sprintf("spdkio: opaque context %#x reclaimed twice or never leaked", uintptr(arg)))
	}
	return tx
}

// ForeignCallback is the completion callback every I/O submission
// collaborator invokes exactly once per accepted operation. A zero status
// fulfills the receiver with the zero value of its type; any other status
// resolves it with a *ForeignOperationError.
func ForeignCallback(status int32, arg Opaque) {
	v, ok := opaques.m.LoadAndDelete(arg)
	if !ok {
		panic(fmt.Sprintf("spdkio: foreign callback for unknown opaque context %#x", uintptr(arg)))
	}
	v.(statusCompleter).completeStatus(status)
}

// Outstanding returns the number of opaque contexts still owned by
// foreign operations.
func Outstanding() int {
	n := 0
	opaques.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
