//go:build !tinygo

package pulse

import (
	"runtime"
	"sync/atomic"
)

// spinLock guards the capture buffer. On a hosted Go runtime the edge handler
// runs on an ordinary goroutine, so a CAS spin is enough.
type spinLock struct {
	v atomic.Uint32
}

func (l *spinLock) lock() {
	for !l.v.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	l.v.Store(0)
}
