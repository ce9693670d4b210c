package pulse

// Pin is an injector drive input as seen from its edge interrupt.
type Pin interface {
	Get() bool
}

// PinHandler returns an edge interrupt handler that feeds c with the pin
// level and the time from nowUS. The pin must interrupt on both edges.
func (c *Capture) PinHandler(nowUS func() uint64) func(Pin) {
	return func(p Pin) {
		c.Edge(p.Get(), nowUS())
	}
}

// GPIOConfig selects the GPIO line the injector drive is wired to.
type GPIOConfig struct {
	Chip   string `yaml:"chip" json:"chip"` // e.g. gpiochip0
	Line   int    `yaml:"line" json:"line"`
	PullUp bool   `yaml:"pull_up" json:"pullUp"`
}
