//go:build tinygo

package pulse

import "runtime/interrupt"

// spinLock guards the capture buffer against the pin interrupt. On a single
// core microcontroller masking interrupts is the lock.
type spinLock struct {
	state interrupt.State
}

func (l *spinLock) lock() {
	l.state = interrupt.Disable()
}

func (l *spinLock) unlock() {
	interrupt.Restore(l.state)
}
