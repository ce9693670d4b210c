package kline

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// SerialConfig holds connection settings for a K-line adapter on a serial
// port (an L9637/MC33290 style transceiver or a "dumb" KKL cable).
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// SerialBus drives the K-line through a UART. The line is pulled low with a
// break condition; the idle state of the TX pin is high.
type SerialBus struct {
	path string
	port serial.Port
}

// OpenSerial opens the port at cfg.BaudRate (default 10400, 8N1).
func OpenSerial(cfg SerialConfig) (*SerialBus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = BaudRate
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("kline: failed to open %s: %w", cfg.PortPath, err)
	}
	log.Printf("[kline] opened %s at %d baud", cfg.PortPath, cfg.BaudRate)
	return &SerialBus{path: cfg.PortPath, port: port}, nil
}

func (b *SerialBus) Hold(high bool, d time.Duration) error {
	if high {
		time.Sleep(d)
		return nil
	}
	if err := b.port.Break(d); err != nil {
		return fmt.Errorf("break on %s: %w", b.path, err)
	}
	return nil
}

// SetUART flushes bytes received while the line was bit-banged. The port
// itself stays open in both modes.
func (b *SerialBus) SetUART(enabled bool) error {
	if !enabled {
		return nil
	}
	return b.port.ResetInputBuffer()
}

func (b *SerialBus) Write(p []byte) (int, error) {
	return b.port.Write(p)
}

func (b *SerialBus) Read(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(p) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := b.port.SetReadTimeout(remaining); err != nil {
			return got, fmt.Errorf("set timeout: %w", err)
		}
		n, err := b.port.Read(p[got:])
		if err != nil && n == 0 {
			return got, fmt.Errorf("read error after %d/%d bytes: %w", got, len(p), err)
		}
		if n == 0 {
			break
		}
		got += n
	}
	return got, nil
}

func (b *SerialBus) Close() error {
	return b.port.Close()
}
