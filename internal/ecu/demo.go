package ecu

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/kline"
	"github.com/shaunagostinho/fuelmeter/internal/pulse"
)

// Key bytes sent by the simulated ECU during 5-baud init.
const demoKeyByte = 0x08

type demoState int

const (
	demoIdle     demoState = iota
	demoAwaitKey           // sent 0x55 and the key bytes, waiting for ~v2
	demoReady
)

// engine is one instant of the simulated drive.
type engine struct {
	rpm      float64
	load     float64 // %
	speed    float64 // km/h
	coolant  float64 // °C
	intake   float64 // °C
	maf      float64 // g/s
	throttle float64 // %
}

// DemoVehicle simulates a car for development without hardware. It is a
// kline.Bus answering the handshakes and mode 01/03/04/07 requests like an
// ECU would, and it can drive a pulse.Capture with injector pulses that
// follow the same simulated engine.
type DemoVehicle struct {
	mu    sync.Mutex
	start time.Time
	rng   *rand.Rand

	state   demoState
	lastLow time.Duration
	uart    bool
	echo    bool
	rx      []byte
	pending []byte
	codes   []uint16
}

func NewDemoVehicle() *DemoVehicle {
	return &DemoVehicle{
		start: time.Now(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		codes: []uint16{0x0133},
	}
}

func (d *DemoVehicle) Name() string { return "Demo (Simulated)" }

// engineAt returns the simulated engine after t seconds of driving: RPM
// cycles between idle and about 3800, load and speed follow it.
func (d *DemoVehicle) engineAt(t float64) engine {
	s := math.Sin(t * 0.1)
	rpm := 850 + 3000*s*s + d.rng.Float64()*30
	frac := (rpm - 850) / 3000
	e := engine{
		rpm:     rpm,
		load:    20 + 60*frac,
		speed:   110 * frac,
		coolant: 88 + d.rng.Float64()*3,
		intake:  25 + d.rng.Float64()*5,
	}
	e.throttle = e.load * 0.8
	// Displacement x half a revolution per intake stroke x air density.
	e.maf = 1.229 * rpm / 120 * e.load / 100 * 1.2
	return e
}

func (d *DemoVehicle) now() engine {
	return d.engineAt(time.Since(d.start).Seconds())
}

// --- kline.Bus ---

func (d *DemoVehicle) Hold(high bool, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !high {
		d.lastLow = dur
	}
	return nil
}

func (d *DemoVehicle) SetUART(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uart = enabled
	d.rx = d.rx[:0]
	d.pending = d.pending[:0]
	if !enabled {
		d.state = demoIdle
		return nil
	}
	if d.lastLow <= 50*time.Millisecond {
		// Fast init: no echo, StartCommunication expected next.
		d.echo = false
		d.state = demoReady
		return nil
	}
	d.echo = true
	d.state = demoAwaitKey
	d.rx = append(d.rx, 0x55, demoKeyByte, demoKeyByte)
	return nil
}

func (d *DemoVehicle) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range p {
		if d.echo {
			d.rx = append(d.rx, b)
		}
		d.receive(b)
	}
	return len(p), nil
}

func (d *DemoVehicle) Read(p []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

func (d *DemoVehicle) receive(b byte) {
	switch d.state {
	case demoIdle:
		return
	case demoAwaitKey:
		if b == ^byte(demoKeyByte) {
			d.rx = append(d.rx, 0xCC)
			d.state = demoReady
		}
		return
	}

	d.pending = append(d.pending, b)
	want := frameLen(d.pending)
	if want == 0 || len(d.pending) < want {
		return
	}
	req := d.pending
	d.pending = nil
	if !kline.ValidChecksum(req) {
		return
	}
	d.respond(req)
}

// frameLen returns the full length of the request starting in p, or 0 when
// not enough of it has arrived to tell.
func frameLen(p []byte) int {
	if p[0]&0xC0 == 0xC0 {
		return int(p[0]&0x3F) + 3 + 1
	}
	if len(p) < 4 {
		return 0
	}
	if p[3] == 0x01 {
		return 6
	}
	return 5
}

func (d *DemoVehicle) respond(req []byte) {
	kwp := req[0]&0xC0 == 0xC0
	service := req[3]

	var payload []byte
	switch service {
	case 0x81: // StartCommunication
		payload = []byte{0xC1, 0xEF, 0x8F}
	case 0x01:
		data := d.pidData(req[4])
		if data == nil {
			return
		}
		payload = append([]byte{0x41, req[4]}, data...)
	case 0x03:
		payload = []byte{0x43}
		for i := 0; i < 3; i++ {
			var c uint16
			if i < len(d.codes) {
				c = d.codes[i]
			}
			payload = append(payload, byte(c>>8), byte(c))
		}
	case 0x04:
		d.codes = nil
		payload = []byte{0x44}
	case 0x07:
		payload = []byte{0x47, 0, 0, 0, 0, 0, 0}
	default:
		return
	}

	var reply []byte
	if kwp {
		reply = append([]byte{0x80 | byte(len(payload)), 0xF1, 0x11}, payload...)
	} else {
		reply = append([]byte{0x48, 0x6B, 0x11}, payload...)
	}
	d.rx = append(d.rx, kline.AppendChecksum(reply)...)
}

func (d *DemoVehicle) pidData(pid byte) []byte {
	e := d.now()
	u16 := func(v float64) []byte {
		x := uint16(v)
		return []byte{byte(x >> 8), byte(x)}
	}
	switch pid {
	case PIDLoad:
		return []byte{byte(e.load * 255 / 100)}
	case PIDCoolant:
		return []byte{byte(e.coolant + 40)}
	case PIDRPM:
		return u16(e.rpm * 4)
	case PIDSpeed:
		return []byte{byte(e.speed)}
	case PIDIntake:
		return []byte{byte(e.intake + 40)}
	case PIDMAF:
		return u16(e.maf * 100)
	case PIDThrottle:
		return []byte{byte(e.throttle * 255 / 100)}
	}
	return nil
}

// --- injector ---

// pulseWidthUS is the simulated injector on time for an engine load.
func pulseWidthUS(load float64) uint64 {
	return uint64(900 + load*60)
}

// RunInjector feeds c with injector edges until ctx is cancelled. One
// injector fires every second crank revolution.
func (d *DemoVehicle) RunInjector(ctx context.Context, c *pulse.Capture) {
	const step = 10 * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	var due float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.mu.Lock()
		e := d.now()
		d.mu.Unlock()

		due += e.rpm / 120 * step.Seconds()
		nowUS := uint64(time.Since(d.start).Microseconds())
		w := pulseWidthUS(e.load)
		for ; due >= 1; due-- {
			c.Edge(false, nowUS)
			c.Edge(true, nowUS+w)
			nowUS += w + 1000
		}
	}
}
