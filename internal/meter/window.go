package meter

// Window is a running sum over the most recent Len() values. Each Push evicts
// the oldest value, so the sum is never recomputed from scratch.
type Window struct {
	slots []float64
	next  int
	sum   float64
}

func NewWindow(n int) *Window {
	if n < 1 {
		n = 1
	}
	return &Window{slots: make([]float64, n)}
}

// Push adds v, evicting the value pushed Len() calls ago, and returns the
// new sum.
func (w *Window) Push(v float64) float64 {
	w.sum -= w.slots[w.next]
	// Float subtraction of an earlier addition can leave a tiny negative.
	if w.sum < 0 {
		w.sum = 0
	}
	w.slots[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % len(w.slots)
	return w.sum
}

func (w *Window) Sum() float64 { return w.sum }

func (w *Window) Len() int { return len(w.slots) }

func (w *Window) Reset() {
	for i := range w.slots {
		w.slots[i] = 0
	}
	w.next = 0
	w.sum = 0
}
