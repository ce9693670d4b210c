//go:build tinygo && baremetal

package pulse

import (
	"machine"
	"time"
)

// AttachPin configures pin as a pulled-up input and feeds c from its edge
// interrupt.
func AttachPin(pin machine.Pin, c *Capture) error {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	start := time.Now()
	h := c.PinHandler(func() uint64 { return uint64(time.Since(start).Microseconds()) })
	return pin.SetInterrupt(machine.PinFalling|machine.PinRising, func(p machine.Pin) { h(p) })
}
