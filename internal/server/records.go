package server

import (
	"encoding/json"
	"fmt"

	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

// Dashboard pages that receive per-cycle records.
const (
	PageComms     = "comms.html"
	PageDebugFuel = "debugfuel.html"
	PageFuel      = "fuel.html"
)

// commsRecord is the live telemetry line.
func commsRecord(s meter.Snapshot) string {
	c := s.Car
	return fmt.Sprintf("c|%d|%d|%d|%d|%d|%.2f|%d|%d|%d",
		c.Load, c.Coolant, c.RPM, c.Speed, c.Intake, c.MAF, c.Throttle,
		c.Attempts, c.Successes)
}

// debugFuelRecord carries the metering internals: pulses counted versus
// implied by RPM, pulse width [ms], ambient temperature and pressure [kPa].
func debugFuelRecord(s meter.Snapshot) string {
	expected := s.ExpectedPulses
	delta := s.PulseDelta()
	if expected == 0 {
		expected = 1
	}
	return fmt.Sprintf("d|%.1f|%.1f|%.1f|%.2f|%d|%d|%d|%d|%d|%.1f|%.1f|%.1f|",
		s.InstCons, s.AvgCons, s.Distance*0.001, s.FuelConsumed*1e-6,
		s.Car.RPM, s.Car.Speed,
		s.PulseCount, expected, delta,
		s.AvgPulseWidthUS*0.001,
		s.AmbientTemp, s.BaroPa*0.001)
}

// fuelRecord is the consumption summary; window sums are in mL.
func fuelRecord(s meter.Snapshot) string {
	return fmt.Sprintf("f|%.1f|%.1f|%d|%.2f|%.1f|%.0f|",
		s.InstCons, s.AvgCons, s.Car.Coolant, s.FuelConsumed*1e-6,
		s.Last6*0.001, s.Last60*0.001)
}

// recordFor returns the record for page, or "" when the page takes none.
func recordFor(page string, s meter.Snapshot) string {
	switch page {
	case PageComms:
		return commsRecord(s)
	case PageDebugFuel:
		return debugFuelRecord(s)
	case PageFuel:
		return fuelRecord(s)
	}
	return ""
}

type storedVals struct {
	Type string  `json:"type"`
	Fuel float64 `json:"fuel"` // L
	Dist float64 `json:"dist"` // km
}

func storedValsJSON(st meter.Stored) ([]byte, error) {
	return json.Marshal(storedVals{Type: "stored_vals", Fuel: st.Litres(), Dist: st.Kilometres()})
}

// inbound is a message from the dashboard.
type inbound struct {
	Type string `json:"type"`
	Page string `json:"page,omitempty"`
}
