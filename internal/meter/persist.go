package meter

import (
	"fmt"
	"log"
)

// Store persists cumulative fuel [µL] and distance [m] across restarts.
type Store interface {
	CumulativeFuel() (uint64, error)
	CumulativeDistance() (uint64, error)
	SetCumulativeFuel(uL uint64) error
	SetCumulativeDistance(m uint64) error
}

// Stored is a pair of persisted totals.
type Stored struct {
	FuelUL    uint64 `json:"fuelUl"`
	DistanceM uint64 `json:"distanceM"`
}

// Litres and Kilometres convert for display.
func (s Stored) Litres() float64     { return float64(s.FuelUL) * 1e-6 }
func (s Stored) Kilometres() float64 { return float64(s.DistanceM) * 1e-3 }

// ReadStored reads both totals. A failed read counts as zero and is logged.
func ReadStored(st Store) Stored {
	var s Stored
	var err error
	if s.FuelUL, err = st.CumulativeFuel(); err != nil {
		log.Printf("[meter] read stored fuel: %v", err)
		s.FuelUL = 0
	}
	if s.DistanceM, err = st.CumulativeDistance(); err != nil {
		log.Printf("[meter] read stored distance: %v", err)
		s.DistanceM = 0
	}
	return s
}

func writeStored(st Store, s Stored) error {
	if err := st.SetCumulativeFuel(s.FuelUL); err != nil {
		return fmt.Errorf("meter: save fuel: %w", err)
	}
	if err := st.SetCumulativeDistance(s.DistanceM); err != nil {
		return fmt.Errorf("meter: save distance: %w", err)
	}
	return nil
}

func (m *Meter) lockOrErr() error {
	if !m.mu.lock(LockTimeout) {
		return fmt.Errorf("meter: stats lock timed out after %v", LockTimeout)
	}
	return nil
}

// Load replaces the statistics with the stored totals. Instantaneous
// consumption and both windows start empty.
func (m *Meter) Load(st Store) error {
	s := ReadStored(st)
	if err := m.lockOrErr(); err != nil {
		return err
	}
	defer m.mu.unlock()

	m.stats = clearedStats()
	m.stats.FuelConsumed = float64(s.FuelUL)
	m.stats.Distance = float64(s.DistanceM)
	if s.DistanceM > 0 {
		m.stats.AvgCons = m.stats.FuelConsumed / m.stats.Distance * 0.1
	}
	m.short.Reset()
	m.long.Reset()
	m.snap.Stats = m.stats
	log.Printf("[meter] loaded %.3f L over %.3f km", s.Litres(), s.Kilometres())
	return nil
}

// SaveOverwrite stores the current totals, replacing what was stored.
func (m *Meter) SaveOverwrite(st Store) (Stored, error) {
	cur, ok := m.Stats()
	if !ok {
		return Stored{}, fmt.Errorf("meter: stats lock timed out after %v", LockTimeout)
	}
	s := Stored{FuelUL: uint64(cur.FuelConsumed), DistanceM: uint64(cur.Distance)}
	if err := writeStored(st, s); err != nil {
		return Stored{}, err
	}
	log.Printf("[meter] saved %.3f L over %.3f km", s.Litres(), s.Kilometres())
	return s, nil
}

// SaveAdd adds the current totals to what was stored.
func (m *Meter) SaveAdd(st Store) (Stored, error) {
	cur, ok := m.Stats()
	if !ok {
		return Stored{}, fmt.Errorf("meter: stats lock timed out after %v", LockTimeout)
	}
	s := ReadStored(st)
	s.FuelUL += uint64(cur.FuelConsumed)
	s.DistanceM += uint64(cur.Distance)
	if err := writeStored(st, s); err != nil {
		return Stored{}, err
	}
	log.Printf("[meter] added to store, now %.3f L over %.3f km", s.Litres(), s.Kilometres())
	return s, nil
}

// Clear resets the in-memory statistics. The store is untouched.
func (m *Meter) Clear() error {
	if err := m.lockOrErr(); err != nil {
		return err
	}
	defer m.mu.unlock()
	m.stats = clearedStats()
	m.short.Reset()
	m.long.Reset()
	m.snap.Stats = m.stats
	return nil
}

// DeleteStored zeroes the stored totals.
func (m *Meter) DeleteStored(st Store) error {
	return writeStored(st, Stored{})
}
