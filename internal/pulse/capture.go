// Package pulse times injector "on" pulses from edges of the injector drive
// line and keeps them in a fixed-capacity buffer until the meter drains them.
//
// Edge is written to be called from a pin interrupt: it never blocks on
// anything but the buffer's spinlock and never allocates.
package pulse

import (
	"sync/atomic"

	"github.com/shaunagostinho/fuelmeter/internal/fuel"
)

// Capacity is the number of pulses one period can hold. At 7000 RPM a single
// injector fires 35 times in 600 ms.
const Capacity = 64

// Sample is one injector pulse width in microseconds.
type Sample = uint32

// Capture is the pulse buffer. The zero value is ready to use.
type Capture struct {
	lock  spinLock
	buf   [Capacity]Sample
	count int

	// fallUS is only touched by the edge handler.
	fallUS  uint64
	falling bool

	dropped atomic.Uint32
}

// Edge records one transition of the injector drive line. The drive is low
// side switched, so a falling edge opens the injector and the following
// rising edge closes it.
func (c *Capture) Edge(high bool, nowUS uint64) {
	if !high {
		c.fallUS = nowUS
		c.falling = true
		return
	}
	if !c.falling {
		return
	}
	c.falling = false

	d := nowUS - c.fallUS
	if d <= fuel.DeadtimeUS || d > 0xFFFFFFFF {
		return
	}

	c.lock.lock()
	if c.count < Capacity {
		c.buf[c.count] = Sample(d)
		c.count++
		c.lock.unlock()
		return
	}
	c.lock.unlock()
	c.dropped.Add(1)
}

// Drain copies the buffered pulses into dst, empties the buffer and returns
// the number copied. Pulses that do not fit into dst are discarded.
func (c *Capture) Drain(dst []Sample) int {
	c.lock.lock()
	n := copy(dst, c.buf[:c.count])
	c.count = 0
	c.lock.unlock()
	return n
}

// Dropped returns how many pulses were lost to a full buffer since start.
func (c *Capture) Dropped() uint32 {
	return c.dropped.Load()
}
