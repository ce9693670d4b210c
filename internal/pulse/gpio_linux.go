//go:build linux

package pulse

import (
	"fmt"
	"log"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO feeds a Capture from edge events on a GPIO character device line.
type GPIO struct {
	line *gpiocdev.Line
}

// OpenGPIO requests cfg's line as an input with edge detection on both
// edges. Events are delivered to c until Close.
func OpenGPIO(cfg GPIOConfig, c *Capture) (*GPIO, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("fuelmeter"),
		gpiocdev.WithEventHandler(c.lineEvent),
	}
	if cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	l, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse: request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}
	log.Printf("[pulse] capturing injector edges on %s line %d", cfg.Chip, cfg.Line)
	return &GPIO{line: l}, nil
}

// Close releases the line.
func (g *GPIO) Close() error {
	return g.line.Close()
}

// lineEvent runs on the library's single event goroutine. Timestamps come
// from the kernel's monotonic clock at the moment of the edge.
func (c *Capture) lineEvent(evt gpiocdev.LineEvent) {
	c.Edge(evt.Type == gpiocdev.LineEventRisingEdge, uint64(evt.Timestamp.Microseconds()))
}
