// Package carrier identifies the execution carrier (a goroutine locked to
// an OS thread) that owns a scheduling context.
//
// Go has no thread-local storage, so a carrier is identified by the id of
// the goroutine that attached to it. Goroutines that run on behalf of a
// carrier, such as coroutine bodies driven by a cooperative scheduler on
// that carrier, register themselves as aliases with Enter.
package carrier

import (
	"runtime"
	"strconv"
	"sync"
)

// ID identifies a carrier. The zero value is never a valid carrier.
type ID uint64

func (id ID) String() string {
	return "carrier-" + strconv.FormatUint(uint64(id), 10)
}

var aliases sync.Map // goroutine id -> ID

// Current returns the carrier the calling goroutine runs on behalf of.
func Current() ID {
	g := Goroutine()
	if c, ok := aliases.Load(g); ok {
		return c.(ID)
	}
	return ID(g)
}

// Enter registers the calling goroutine as running on behalf of c until
// the returned function is called. Entering the carrier the goroutine
// already belongs to is a no-op.
func Enter(c ID) (leave func()) {
	g := Goroutine()
	if ID(g) == c {
		return func() {}
	}
	prev, had := aliases.Swap(g, c)
	return func() {
		if had {
			aliases.Store(g, prev)
		} else {
			aliases.Delete(g)
		}
	}
}

// Goroutine returns the id of the calling goroutine.
func Goroutine() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
