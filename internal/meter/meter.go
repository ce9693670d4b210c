// Package meter runs the periodic fuel metering cycle: it samples the
// vehicle, drains the captured injector pulses, converts them to fuel volume
// and keeps running consumption statistics.
package meter

import (
	"context"
	"log"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/ecu"
	"github.com/shaunagostinho/fuelmeter/internal/fuel"
	"github.com/shaunagostinho/fuelmeter/internal/pulse"
)

const (
	DefaultPeriod = 600 * time.Millisecond

	// Window lengths in periods: 6 s and 60 s at the default period.
	ShortWindow = 10
	LongWindow  = 100

	// LockTimeout bounds every wait for the statistics lock.
	LockTimeout = 100 * time.Millisecond

	// Below this many metres consumption per distance is meaningless.
	minDistance = 0.1
)

// Sampler acquires one vehicle sample per cycle. It may block on bus I/O.
type Sampler interface {
	Sample() ecu.CarSample
}

// PulseSource hands over the pulses captured since the last call.
type PulseSource interface {
	Drain(dst []pulse.Sample) int
	Dropped() uint32
}

// Ambient provides cabin temperature and barometric pressure. Either reading
// may be unavailable.
type Ambient interface {
	Temperature() (float64, bool)
	Barometric() (float64, bool)
}

// Stats are the cumulative consumption figures. Consumption values are -1
// while undefined.
type Stats struct {
	FuelConsumed float64 `json:"fuelConsumed"` // µL
	Distance     float64 `json:"distance"`     // m
	InstCons     float64 `json:"instCons"`     // L/100 km
	AvgCons      float64 `json:"avgCons"`      // L/100 km
	Last6        float64 `json:"last6"`        // µL over the short window
	Last60       float64 `json:"last60"`       // µL over the long window
}

func clearedStats() Stats {
	return Stats{InstCons: -1, AvgCons: -1}
}

// Snapshot is what the meter publishes after each cycle.
type Snapshot struct {
	Stats
	Car ecu.CarSample `json:"car"`

	Cycle          uint64    `json:"cycle"`
	Time           time.Time `json:"time"`
	PeriodFuel     float64   `json:"periodFuel"`     // µL
	PeriodDistance float64   `json:"periodDistance"` // m
	ManifoldPa     uint32    `json:"manifoldPa"`
	FlowCoeff      float64   `json:"flowCoeff"` // µL/ms

	PulseCount      int     `json:"pulseCount"`
	ExpectedPulses  int     `json:"expectedPulses"` // implied by RPM
	AvgPulseWidthUS float64 `json:"avgPulseWidthUs"`
	DroppedPulses   uint32  `json:"droppedPulses"`

	AmbientTemp  float64 `json:"ambientTemp"` // °C
	AmbientValid bool    `json:"ambientValid"`
	BaroPa       float64 `json:"baroPa"`
	BaroValid    bool    `json:"baroValid"`
}

// PulseDelta is the number of injections expected from RPM that were not
// captured. Negative when more pulses arrived than RPM implies.
func (s Snapshot) PulseDelta() int {
	return s.ExpectedPulses - s.PulseCount
}

// Config configures a Meter.
type Config struct {
	Period    time.Duration
	Cylinders int
	Debug     bool // log every sample
}

// Meter owns the consumption statistics. Run drives it; everything else may
// be called from other goroutines.
type Meter struct {
	period    time.Duration
	cylinders int
	debug     bool

	sampler Sampler
	pulses  PulseSource
	ambient Ambient // may be nil

	buf [pulse.Capacity]pulse.Sample
	// Period results that could not be applied because mu timed out.
	carryFuel, carryDist float64

	ready chan struct{}

	// mu guards everything below.
	mu          timedMutex
	stats       Stats
	short, long *Window
	snap        Snapshot
	cycles      uint64
}

// New returns a meter with cleared statistics.
func New(cfg Config, sampler Sampler, pulses PulseSource, ambient Ambient) *Meter {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Cylinders <= 0 {
		cfg.Cylinders = fuel.Cylinders
	}
	m := &Meter{
		period:    cfg.Period,
		cylinders: cfg.Cylinders,
		debug:     cfg.Debug,
		sampler:   sampler,
		pulses:    pulses,
		ambient:   ambient,
		mu:        newTimedMutex(),
		stats:     clearedStats(),
		short:     NewWindow(ShortWindow),
		long:      NewWindow(LongWindow),
		ready:     make(chan struct{}, 1),
	}
	m.snap.Stats = m.stats
	return m
}

// Period returns the cycle period.
func (m *Meter) Period() time.Duration { return m.period }

// Ready delivers one value after each completed cycle. At most one signal is
// outstanding; a slow reader misses intermediate cycles.
func (m *Meter) Ready() <-chan struct{} { return m.ready }

// Run cycles every period until ctx is cancelled. The ticker keeps the
// cadence fixed regardless of how long a cycle takes.
func (m *Meter) Run(ctx context.Context) error {
	log.Printf("[meter] running every %v, %d cylinders", m.period, m.cylinders)
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.cycle()
		}
	}
}

func (m *Meter) cycle() {
	car := m.sampler.Sample()

	n := m.pulses.Drain(m.buf[:])
	pulses := m.buf[:n]
	if m.debug {
		log.Printf("[meter] %v pulses=%d", car, n)
	}

	mapPa := uint32(fuel.DefaultManifoldPa)
	if car.CanCalcMAP {
		mapPa = fuel.ManifoldPressure(car.Load, car.RPM)
	}

	var amb Snapshot
	if m.ambient != nil {
		amb.AmbientTemp, amb.AmbientValid = m.ambient.Temperature()
		amb.BaroPa, amb.BaroValid = m.ambient.Barometric()
	}
	baro := float64(fuel.BarometricBaseline)
	if amb.BaroValid {
		baro = amb.BaroPa
	}

	coeff := fuel.FlowCoefficient(float64(mapPa), baro)
	vol := fuel.PeriodVolume(pulses, coeff, m.cylinders)
	dist := float64(car.Speed) / 3.6 * m.period.Seconds()

	if !m.mu.lock(LockTimeout) {
		m.carryFuel += vol
		m.carryDist += dist
		log.Printf("[meter] warning: stats lock timed out, deferring %.1f µL / %.1f m", vol, dist)
		m.signal()
		return
	}
	vol += m.carryFuel
	dist += m.carryDist
	m.carryFuel, m.carryDist = 0, 0

	m.update(vol, dist)
	m.cycles++
	m.snap = Snapshot{
		Stats:           m.stats,
		Car:             car,
		Cycle:           m.cycles,
		Time:            time.Now(),
		PeriodFuel:      vol,
		PeriodDistance:  dist,
		ManifoldPa:      mapPa,
		FlowCoeff:       coeff,
		PulseCount:      n,
		ExpectedPulses:  fuel.ExpectedInjections(car.RPM, m.period),
		AvgPulseWidthUS: fuel.AveragePulseWidth(pulses),
		DroppedPulses:   m.pulses.Dropped(),
		AmbientTemp:     amb.AmbientTemp,
		AmbientValid:    amb.AmbientValid,
		BaroPa:          amb.BaroPa,
		BaroValid:       amb.BaroValid,
	}
	m.mu.unlock()

	m.signal()
}

// update applies one period to the statistics. Caller holds mu.
func (m *Meter) update(vol, dist float64) {
	s := &m.stats
	s.FuelConsumed += vol
	s.Distance += dist

	// 1 µL/m = 1 mL/km = 0.1 L/100 km
	if dist < minDistance || s.Distance < minDistance {
		s.InstCons = -1
	} else {
		s.InstCons = vol / dist * 0.1
	}
	if s.Distance < minDistance {
		s.AvgCons = -1
	} else {
		s.AvgCons = s.FuelConsumed / s.Distance * 0.1
	}

	s.Last6 = m.short.Push(vol)
	s.Last60 = m.long.Push(vol)
}

func (m *Meter) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the last published cycle. ok is false when the
// statistics lock could not be taken within LockTimeout.
func (m *Meter) Snapshot() (s Snapshot, ok bool) {
	if !m.mu.lock(LockTimeout) {
		return Snapshot{}, false
	}
	s = m.snap
	m.mu.unlock()
	return s, true
}

// Stats returns a copy of the current statistics.
func (m *Meter) Stats() (Stats, bool) {
	if !m.mu.lock(LockTimeout) {
		return Stats{}, false
	}
	s := m.stats
	m.mu.unlock()
	return s, true
}
