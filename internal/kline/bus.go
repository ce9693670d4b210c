// Package kline is an ISO 9141-2 / KWP2000 client for the single-wire K-line
// diagnostic bus.
//
// The client performs one of three handshakes (5-baud slow init, the same
// with KWP framing afterwards, or KWP2000 fast init) and then issues
// checksummed mode 01 requests whose payload is read back from a fixed
// 16-byte response buffer.
package kline

import (
	"errors"
	"time"
)

// BaudRate is the K-line UART speed after initialization.
const BaudRate = 10400

// BufferSize is the size of the response buffer.
const BufferSize = 16

var (
	ErrTimeout        = errors.New("kline: timeout")
	ErrChecksum       = errors.New("kline: checksum mismatch")
	ErrEcho           = errors.New("kline: echo mismatch")
	ErrPIDMismatch    = errors.New("kline: response for a different PID")
	ErrLength         = errors.New("kline: unexpected response length")
	ErrNotInitialized = errors.New("kline: bus not initialized")
	ErrHandshake      = errors.New("kline: handshake failed")
)

// Bus is the physical K-line.
//
// Before a handshake the line is bit-banged with Hold; once SetUART(true) is
// called it is a 10400 baud 8N1 serial port. On a real K-line every byte the
// tester sends is received back as an echo.
type Bus interface {
	// Hold drives the line to the given level for d. Only meaningful while
	// the UART is disabled.
	Hold(high bool, d time.Duration) error
	// SetUART switches between bit-bang and UART mode. Enabling the UART
	// discards anything already received.
	SetUART(enabled bool) error
	Write(p []byte) (int, error)
	// Read waits up to timeout for len(p) bytes. It returns how many arrived;
	// a short count with a nil error means the timeout elapsed.
	Read(p []byte, timeout time.Duration) (int, error)
}
