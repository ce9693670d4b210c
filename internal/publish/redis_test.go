package publish

import (
	"testing"

	"github.com/shaunagostinho/fuelmeter/internal/ecu"
	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

func TestFields(t *testing.T) {
	s := meter.Snapshot{
		Stats: meter.Stats{
			FuelConsumed: 1234.56,
			Distance:     500,
			InstCons:     -1,
			AvgCons:      0.24,
			Last6:        100,
			Last60:       900,
		},
		Car:             ecu.CarSample{RPM: 3000, Speed: 50},
		Cycle:           7,
		PulseCount:      10,
		ExpectedPulses:  15,
		AvgPulseWidthUS: 1512.4,
	}
	f := Fields(s)

	tests := []struct {
		key  string
		want interface{}
	}{
		{"cycle", uint64(7)},
		{"fuel-consumed", "1234.6"},
		{"distance", "500.0"},
		{"inst-cons", ""},
		{"avg-cons", "0.2"},
		{"rpm", uint16(3000)},
		{"speed", uint8(50)},
		{"pulse-delta", 5},
		{"avg-pulse-width", "1512"},
	}
	for _, tt := range tests {
		if got := f[tt.key]; got != tt.want {
			t.Errorf("%s: expected %v (%T), got %v (%T)", tt.key, tt.want, tt.want, got, got)
		}
	}
}
