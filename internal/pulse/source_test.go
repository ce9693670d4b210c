package pulse

import "testing"

type fakePin struct {
	high bool
}

func (p *fakePin) Get() bool { return p.high }

func TestPinHandler_TimesPulsesFromPinLevel(t *testing.T) {
	var c Capture
	var now uint64
	h := c.PinHandler(func() uint64 { return now })
	pin := &fakePin{high: true}

	edge := func(high bool, at uint64) {
		pin.high = high
		now = at
		h(pin)
	}
	edge(false, 10_000)
	edge(true, 11_500)
	edge(false, 40_000)
	edge(true, 40_500) // below deadtime
	edge(false, 70_000)
	edge(true, 71_600)

	dst := make([]Sample, Capacity)
	n := c.Drain(dst)
	if n != 2 || dst[0] != 1500 || dst[1] != 1600 {
		t.Errorf("expected [1500 1600], got %v", dst[:n])
	}
}

func TestPinHandler_ManyPulses(t *testing.T) {
	var c Capture
	var now uint64
	h := c.PinHandler(func() uint64 { return now })
	pin := &fakePin{}

	for i := 0; i < 20; i++ {
		pin.high, now = false, uint64(i)*30_000
		h(pin)
		pin.high, now = true, now+2_000
		h(pin)
	}
	dst := make([]Sample, Capacity)
	if n := c.Drain(dst); n != 20 {
		t.Errorf("expected 20 pulses, got %d", n)
	}
}
