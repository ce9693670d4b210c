package kline

import (
	"fmt"
	"log"
)

// Mode 01 ("show current data") is the only service the meter uses.
const modeCurrentData = 0x01

// kwpHeader rewrites an ISO 9141 header for KWP2000: the format byte carries
// the payload length, the target address is 0x33.
func kwpHeader(req []byte) []byte {
	r := make([]byte, len(req))
	copy(r, req)
	r[0] = 0xC0 | byte(len(req)-3)
	r[1] = 0x33
	return r
}

func (c *Client) resetBuffer() {
	for i := range c.buf {
		c.buf[i] = 0
	}
}

// Request sends req (header and payload, without checksum) and reads a reply
// of exactly retLen bytes plus checksum into the response buffer. On failure
// whatever arrived stays in the buffer.
func (c *Client) Request(req []byte, retLen int) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if len(req) < 3 {
		return fmt.Errorf("kline: request of %d bytes is shorter than its header", len(req))
	}
	if c.kwp {
		n, err := c.requestKWP(kwpHeader(req))
		if err != nil {
			return err
		}
		if n != retLen {
			return fmt.Errorf("%w: got %d, want %d", ErrLength, n, retLen)
		}
		return nil
	}
	return c.requestISO(req, retLen)
}

func (c *Client) requestISO(req []byte, retLen int) error {
	if retLen+1 > BufferSize {
		return fmt.Errorf("kline: reply of %d bytes exceeds the %d byte buffer", retLen+1, BufferSize)
	}
	frame := AppendChecksum(append([]byte(nil), req...))
	if err := c.writeFrame(frame, false); err != nil {
		return err
	}

	c.resetBuffer()
	reply := c.buf[:retLen+1]
	if err := c.readExact(reply, ms(answerMsPerByte*retLen+answerSlackMs)); err != nil {
		return err
	}
	if c.debug {
		log.Printf("[kline] R: % X", reply)
	}
	if !ValidChecksum(reply) {
		return fmt.Errorf("%w: % X", ErrChecksum, reply)
	}
	return nil
}

// requestKWP sends a KWP2000 frame and reads the reply whose length is
// encoded in the low six bits of its format byte. It returns the reply
// length without the checksum.
func (c *Client) requestKWP(req []byte) (int, error) {
	frame := AppendChecksum(append([]byte(nil), req...))
	if err := c.writeFrame(frame, false); err != nil {
		return 0, err
	}

	c.resetBuffer()
	if err := c.readExact(c.buf[:1], ms(answerMsPerByte+answerSlackMs)); err != nil {
		return 0, err
	}
	// A zero length means a separate length byte follows the header, which
	// no supported ECU sends.
	msgLen := int(c.buf[0] & 0x3F)
	remainder := msgLen + 2 + 1 // addresses, payload, checksum
	if 1+remainder > BufferSize {
		return 0, fmt.Errorf("%w: format byte 0x%02X announces %d bytes", ErrLength, c.buf[0], msgLen)
	}
	if err := c.readExact(c.buf[1:1+remainder], ms(answerMsPerByte*(remainder+1))); err != nil {
		return 0, err
	}
	reply := c.buf[:1+remainder]
	if c.debug {
		log.Printf("[kline] R: % X", reply)
	}
	if !ValidChecksum(reply) {
		return 0, fmt.Errorf("%w: % X", ErrChecksum, reply)
	}
	return remainder, nil
}

// RequestVar sends req and reads a reply whose length is not known up front.
// It returns the reply length without the checksum.
func (c *Client) RequestVar(req []byte) (int, error) {
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	if len(req) < 3 {
		return 0, fmt.Errorf("kline: request of %d bytes is shorter than its header", len(req))
	}
	if c.kwp {
		return c.requestKWP(kwpHeader(req))
	}

	c.resetBuffer()
	frame := AppendChecksum(append([]byte(nil), req...))
	if err := c.writeFrame(frame, true); err != nil {
		return 0, err
	}

	// Keep reading single bytes until the ECU goes quiet.
	n := 0
	timeout := ms(answerMsPerByte + answerSlackMs)
	for n < BufferSize {
		got, err := c.bus.Read(c.buf[n:n+1], timeout)
		if err != nil {
			return 0, fmt.Errorf("kline: read: %w", err)
		}
		if got == 0 {
			break
		}
		n++
		timeout = ms(answerMsPerByte)
	}
	if c.debug {
		log.Printf("[kline] A (%d): % X", n, c.buf[:n])
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	if !ValidChecksum(c.buf[:n]) {
		return 0, fmt.Errorf("%w: % X", ErrChecksum, c.buf[:n])
	}
	return n - 1, nil
}

// PID reads a mode 01 parameter with a payload of retLen bytes.
func (c *Client) PID(pid byte, retLen int) error {
	return c.ModePID(modeCurrentData, pid, retLen)
}

// ModePID reads parameter pid of the given service. The reply header is
// four bytes followed by the PID, so the payload starts at offset 5.
func (c *Client) ModePID(mode, pid byte, retLen int) error {
	req := []byte{0x68, 0x6A, 0xF1, mode, pid}
	if err := c.Request(req, retLen+5); err != nil {
		return err
	}
	if c.buf[4] != pid {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrPIDMismatch, c.buf[4], pid)
	}
	return nil
}

// Uint8 returns the first payload byte of the last reply.
func (c *Client) Uint8() uint8 { return c.buf[5] }

// Uint16 returns the first two payload bytes as a big-endian value.
func (c *Client) Uint16() uint16 {
	return uint16(c.buf[5])<<8 | uint16(c.buf[6])
}

// Uint32 returns the first four payload bytes as a big-endian value.
func (c *Client) Uint32() uint32 {
	return uint32(c.buf[5])<<24 | uint32(c.buf[6])<<16 | uint32(c.buf[7])<<8 | uint32(c.buf[8])
}

// Uint8At returns payload byte i.
func (c *Client) Uint8At(i int) uint8 { return c.buf[5+i] }

// Byte returns raw response buffer byte i.
func (c *Client) Byte(i int) byte { return c.buf[i] }

// Buffer returns a copy of the response buffer.
func (c *Client) Buffer() [BufferSize]byte { return c.buf }
