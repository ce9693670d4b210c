package kline

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// InitMode selects the handshake performed by Client.Init and the framing
// used afterwards.
type InitMode int

const (
	// InitSlow is the ISO 9141-2 5-baud init; both key bytes must match.
	InitSlow InitMode = iota
	// InitKWPSlow is the 5-baud init without the key byte check, followed
	// by KWP2000 framing.
	InitKWPSlow
	// InitFast is the KWP2000 25 ms/25 ms fast init.
	InitFast
)

func (m InitMode) String() string {
	switch m {
	case InitSlow:
		return "slow"
	case InitKWPSlow:
		return "kwp-slow"
	case InitFast:
		return "fast"
	}
	return fmt.Sprintf("InitMode(%d)", int(m))
}

// ParseInitMode accepts "slow", "kwp-slow" and "fast" (case-insensitive).
func ParseInitMode(s string) (InitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slow", "iso", "iso9141":
		return InitSlow, nil
	case "kwp-slow", "kwpslow":
		return InitKWPSlow, nil
	case "fast", "kwp", "kwp-fast":
		return InitFast, nil
	}
	return InitSlow, fmt.Errorf("kline: unknown init mode %q", s)
}

// Timing, all in milliseconds unless noted.
const (
	interSymbolWait = 5 * time.Millisecond

	echoMsPerByte   = 3
	echoSlackMs     = 5
	answerMsPerByte = 3
	answerSlackMs   = 30 + 20 // mandated inter-message gap plus margin

	idleBeforeInit = 3000 * time.Millisecond
	postInitDelay  = 50 * time.Millisecond

	syncTimeout    = 300 + 200
	keyByteTimeout = 20
	keyReplyWait   = 30 * time.Millisecond
	confirmTimeout = 50

	fastInitLow = 25 * time.Millisecond
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Config configures a Client.
type Config struct {
	Init  InitMode
	Debug bool // log every frame in hex
}

// Client talks to one ECU over one Bus. It is not safe for concurrent use;
// after initialization only the metering goroutine may call it.
type Client struct {
	bus   Bus
	mode  InitMode
	debug bool

	kwp         bool
	initialized bool
	buf         [BufferSize]byte

	sleep func(time.Duration)
	now   func() time.Time
}

// NewClient returns an uninitialized client; call Init before any request.
func NewClient(bus Bus, cfg Config) *Client {
	return &Client{
		bus:   bus,
		mode:  cfg.Init,
		debug: cfg.Debug,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Mode returns the configured handshake.
func (c *Client) Mode() InitMode { return c.mode }

// Initialized reports whether the last Init succeeded.
func (c *Client) Initialized() bool { return c.initialized }

// echoes reports whether written bytes come back on the line. The fast init
// session is driven without reading echoes.
func (c *Client) echoes() bool { return c.mode != InitFast }

// Init runs the configured handshake. On failure the bus is left in UART
// mode and Init may simply be called again.
func (c *Client) Init() error {
	c.initialized = false
	var err error
	switch c.mode {
	case InitSlow:
		c.kwp = false
		err = c.slowInit(true)
	case InitKWPSlow:
		c.kwp = false
		err = c.slowInit(false)
		c.kwp = true
	case InitFast:
		c.kwp = true
		err = c.fastInit()
	default:
		return fmt.Errorf("kline: init: unsupported mode %v", c.mode)
	}
	if err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) idle() error {
	if err := c.bus.SetUART(false); err != nil {
		return fmt.Errorf("kline: disable uart: %w", err)
	}
	if err := c.bus.Hold(true, idleBeforeInit); err != nil {
		return fmt.Errorf("kline: idle: %w", err)
	}
	return nil
}

// slowInit sends the address byte 0x33 at 5 baud and completes the key byte
// exchange.
func (c *Client) slowInit(checkKeys bool) error {
	if err := c.idle(); err != nil {
		return err
	}

	pattern := []struct {
		high bool
		d    time.Duration
	}{
		{false, 200 * time.Millisecond}, // start bit
		{true, 400 * time.Millisecond},
		{false, 400 * time.Millisecond},
		{true, 400 * time.Millisecond},
		{false, 400 * time.Millisecond},
		{true, 200 * time.Millisecond}, // stop bit
	}
	for _, p := range pattern {
		if err := c.bus.Hold(p.high, p.d); err != nil {
			return fmt.Errorf("kline: 5 baud address: %w", err)
		}
	}
	if err := c.bus.SetUART(true); err != nil {
		return fmt.Errorf("kline: enable uart: %w", err)
	}

	b, err := c.readByte(ms(syncTimeout))
	if err != nil {
		return fmt.Errorf("%w: sync byte: %v", ErrHandshake, err)
	}
	if b != 0x55 {
		return fmt.Errorf("%w: sync byte 0x%02X, want 0x55", ErrHandshake, b)
	}

	v1, err := c.readByte(ms(keyByteTimeout))
	if err != nil {
		return fmt.Errorf("%w: key byte 1: %v", ErrHandshake, err)
	}
	v2, err := c.readByte(ms(keyByteTimeout))
	if err != nil {
		return fmt.Errorf("%w: key byte 2: %v", ErrHandshake, err)
	}
	if c.debug {
		log.Printf("[kline] key bytes: %02X %02X", v1, v2)
	}
	if checkKeys && v1 != v2 {
		return fmt.Errorf("%w: key bytes differ (0x%02X, 0x%02X)", ErrHandshake, v1, v2)
	}

	c.sleep(keyReplyWait)
	if _, err := c.bus.Write([]byte{^v2}); err != nil {
		return fmt.Errorf("kline: write inverted key: %w", err)
	}
	var echo [1]byte
	if _, err := c.bus.Read(echo[:], ms(echoMsPerByte+echoSlackMs)); err != nil {
		return fmt.Errorf("kline: read inverted key echo: %w", err)
	}

	b, err = c.readByte(ms(confirmTimeout))
	if err != nil {
		return fmt.Errorf("%w: confirmation: %v", ErrHandshake, err)
	}
	if b != 0xCC {
		return fmt.Errorf("%w: confirmation 0x%02X, want 0xCC", ErrHandshake, b)
	}
	c.sleep(postInitDelay)
	return nil
}

// fastInit sends the 25 ms wake-up pattern followed by a
// StartCommunication request.
func (c *Client) fastInit() error {
	if err := c.idle(); err != nil {
		return err
	}
	if err := c.bus.Hold(false, fastInitLow); err != nil {
		return fmt.Errorf("kline: wake-up low: %w", err)
	}
	// The high half of the pattern includes the time it takes to bring the
	// UART up.
	start := c.now()
	if err := c.bus.SetUART(true); err != nil {
		return fmt.Errorf("kline: enable uart: %w", err)
	}
	if rest := fastInitLow - c.now().Sub(start); rest > 0 {
		c.sleep(rest)
	}

	n, err := c.requestKWP([]byte{0xC1, 0x33, 0xF1, 0x81})
	if err != nil {
		return fmt.Errorf("%w: start communication: %v", ErrHandshake, err)
	}
	if n != 6 {
		return fmt.Errorf("%w: start communication reply of %d bytes, want 6", ErrHandshake, n)
	}
	if c.buf[3] != 0xC1 {
		return fmt.Errorf("%w: start communication response 0x%02X, want 0xC1", ErrHandshake, c.buf[3])
	}
	return nil
}

func (c *Client) readByte(timeout time.Duration) (byte, error) {
	var b [1]byte
	n, err := c.bus.Read(b[:], timeout)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return b[0], nil
}

// readExact fills p within timeout. The bytes that did arrive stay in p.
func (c *Client) readExact(p []byte, timeout time.Duration) error {
	n, err := c.bus.Read(p, timeout)
	if err != nil {
		return fmt.Errorf("kline: read after %d/%d bytes: %w", n, len(p), err)
	}
	if n < len(p) {
		if c.debug {
			log.Printf("[kline] read: got %d/%d bytes: % X", n, len(p), p[:n])
		}
		return fmt.Errorf("%w: got %d bytes, want %d", ErrTimeout, n, len(p))
	}
	return nil
}

// writeFrame sends frame one byte at a time with the inter-symbol wait, then
// consumes the echo when the line echoes. verify makes a differing echo an
// error.
func (c *Client) writeFrame(frame []byte, verify bool) error {
	if c.debug {
		log.Printf("[kline] W: % X", frame)
	}
	for i := range frame {
		if _, err := c.bus.Write(frame[i : i+1]); err != nil {
			return fmt.Errorf("kline: write: %w", err)
		}
		c.sleep(interSymbolWait)
	}
	if !c.echoes() {
		return nil
	}

	echo := make([]byte, len(frame))
	timeout := ms(echoMsPerByte*len(frame) + echoSlackMs)
	n, err := c.bus.Read(echo, timeout)
	if err != nil {
		return fmt.Errorf("kline: read echo: %w", err)
	}
	if !verify {
		return nil
	}
	if n < len(frame) {
		return fmt.Errorf("%w: got %d of %d bytes", ErrEcho, n, len(frame))
	}
	for i := range frame {
		if echo[i] != frame[i] {
			return fmt.Errorf("%w: % X, sent % X", ErrEcho, echo, frame)
		}
	}
	return nil
}
