//go:build !linux

package pulse

import "errors"

// GPIO is only available on Linux.
type GPIO struct{}

func OpenGPIO(cfg GPIOConfig, c *Capture) (*GPIO, error) {
	return nil, errors.New("pulse: gpio capture needs linux")
}

func (g *GPIO) Close() error { return nil }
