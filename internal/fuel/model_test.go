package fuel

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

const eps = 1e-9

func tableBounds() (lo, hi uint32) {
	lo, hi = mapTable[0][0], mapTable[0][0]
	for _, row := range mapTable {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// --- ManifoldPressure ---

func TestManifoldPressure_Breakpoints(t *testing.T) {
	tests := []struct {
		load uint8
		rpm  uint16
		want uint32
	}{
		{0, 500, 30000},
		{100, 500, 55000},
		{40, 2000, 50000},
		{60, 3000, 65000},
		{100, 7000, 100000},
	}
	for _, tt := range tests {
		if got := ManifoldPressure(tt.load, tt.rpm); got != tt.want {
			t.Errorf("ManifoldPressure(%d, %d): expected %d, got %d", tt.load, tt.rpm, tt.want, got)
		}
	}
}

func TestManifoldPressure_Interpolates(t *testing.T) {
	// Halfway between load 20 and 40 at 2000 RPM: (40000+50000)/2
	if got := ManifoldPressure(30, 2000); got != 45000 {
		t.Errorf("expected 45000, got %d", got)
	}
	// Halfway between 2000 and 3000 RPM at load 40: (50000+55000)/2
	if got := ManifoldPressure(40, 2500); got != 52500 {
		t.Errorf("expected 52500, got %d", got)
	}
	// Centre of the (20..40, 2000..3000) cell: mean of 40000, 50000, 45000, 55000
	if got := ManifoldPressure(30, 2500); got != 47500 {
		t.Errorf("expected 47500, got %d", got)
	}
}

func TestManifoldPressure_Clamps(t *testing.T) {
	if got, want := ManifoldPressure(0, 0), ManifoldPressure(0, 500); got != want {
		t.Errorf("low RPM not clamped: %d vs %d", got, want)
	}
	if got, want := ManifoldPressure(255, 9000), ManifoldPressure(100, 7000); got != want {
		t.Errorf("high load/RPM not clamped: %d vs %d", got, want)
	}
}

func TestManifoldPressure_BoundedByTable(t *testing.T) {
	lo, hi := tableBounds()
	for load := 0; load <= 255; load++ {
		for rpm := 0; rpm <= 12000; rpm += 37 {
			p := ManifoldPressure(uint8(load), uint16(rpm))
			if p < lo || p > hi {
				t.Fatalf("ManifoldPressure(%d, %d) = %d outside [%d, %d]", load, rpm, p, lo, hi)
			}
		}
	}
}

// --- FlowCoefficient ---

func TestFlowCoefficient_AtReferencePressure(t *testing.T) {
	// MAP equal to baseline: 4 bar across the injector, no correction.
	got := FlowCoefficient(BarometricBaseline, BarometricBaseline)
	if math.Abs(got-StaticFlowRate) > eps {
		t.Errorf("expected %f, got %f", StaticFlowRate, got)
	}
}

func TestFlowCoefficient_VacuumRaisesFlow(t *testing.T) {
	idle := FlowCoefficient(30000, BarometricBaseline)
	wot := FlowCoefficient(100000, BarometricBaseline)
	if idle <= wot {
		t.Errorf("expected idle coefficient %f above WOT %f", idle, wot)
	}
	want := StaticFlowRate * math.Sqrt(470000.0/400000.0)
	if math.Abs(idle-want) > eps {
		t.Errorf("expected %f, got %f", want, idle)
	}
}

func TestFlowCoefficient_ZeroBaroFallsBackToBaseline(t *testing.T) {
	if a, b := FlowCoefficient(60000, 0), FlowCoefficient(60000, BarometricBaseline); a != b {
		t.Errorf("expected baseline fallback, got %f vs %f", a, b)
	}
}

// --- PulseVolume ---

func TestPulseVolume_ZeroAtDeadtime(t *testing.T) {
	if v := PulseVolume(DeadtimeUS, 2.5); v != 0 {
		t.Errorf("expected 0 at deadtime, got %f", v)
	}
	if v := PulseVolume(100, 2.5); v != 0 {
		t.Errorf("expected 0 below deadtime, got %f", v)
	}
}

func TestPulseVolume_FullRamp(t *testing.T) {
	coeff := 2.0
	// 1500 µs: 325 + 100 + 300 µs equivalent of static flow
	want := 0.725 * coeff
	if got := PulseVolume(1500, coeff); math.Abs(got-want) > eps {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestPulseVolume_PartialRampSquareLaw(t *testing.T) {
	coeff := 2.3
	triangles := (RampUpTimeUS*0.5 + RampDownTimeUS*0.5) * 0.001 * coeff
	for w := uint32(DeadtimeUS); w < FullOpeningTimeUS; w++ {
		r := float64(w-DeadtimeUS) / RampUpTimeUS
		want := triangles * r * r
		if got := PulseVolume(w, coeff); math.Abs(got-want) > eps {
			t.Fatalf("PulseVolume(%d): expected %f, got %f", w, want, got)
		}
	}
}

func TestPulseVolume_MonotonicFullRamp(t *testing.T) {
	coeff := FlowCoefficient(DefaultManifoldPa, BarometricBaseline)
	prev := PulseVolume(FullOpeningTimeUS, coeff)
	for w := uint32(FullOpeningTimeUS + 1); w < 30000; w++ {
		v := PulseVolume(w, coeff)
		if v < prev {
			t.Fatalf("volume decreased at %d µs: %f < %f", w, v, prev)
		}
		prev = v
	}
}

func TestPulseVolume_ContinuousAtFullOpening(t *testing.T) {
	coeff := 2.0
	below := PulseVolume(FullOpeningTimeUS-1, coeff)
	at := PulseVolume(FullOpeningTimeUS, coeff)
	if at < below {
		t.Errorf("expected no drop at full opening: %f -> %f", below, at)
	}
}

// --- Aggregates ---

func TestPeriodVolume_ScalesByCylinders(t *testing.T) {
	coeff := 2.0
	pulses := []uint32{1500, 1600, 800}
	var want float64
	for _, p := range pulses {
		want += PulseVolume(p, coeff)
	}
	want *= Cylinders
	if got := PeriodVolume(pulses, coeff, Cylinders); math.Abs(got-want) > eps {
		t.Errorf("expected %f, got %f", want, got)
	}
	if got := PeriodVolume(nil, coeff, Cylinders); got != 0 {
		t.Errorf("expected 0 for no pulses, got %f", got)
	}
}

func TestAveragePulseWidth(t *testing.T) {
	if got := AveragePulseWidth(nil); got != 0 {
		t.Errorf("expected 0 for empty set, got %f", got)
	}
	if got := AveragePulseWidth([]uint32{1500, 1600}); got != 1550 {
		t.Errorf("expected 1550, got %f", got)
	}
}

func TestExpectedInjections(t *testing.T) {
	tests := []struct {
		rpm  uint16
		want int
	}{
		{0, 0},
		{800, 4},   // 800/120*0.6 = 4
		{3000, 15}, // 3000/120*0.6 = 15
	}
	for _, tt := range tests {
		if got := ExpectedInjections(tt.rpm, 600*time.Millisecond); got != tt.want {
			t.Errorf("ExpectedInjections(%d): expected %d, got %d", tt.rpm, tt.want, got)
		}
	}
}

func TestPulseVolume_RandomWidthsNonNegative(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		w := uint32(r.Intn(40000))
		if v := PulseVolume(w, 2.5); v < 0 || math.IsNaN(v) {
			t.Fatalf("PulseVolume(%d) = %f", w, v)
		}
	}
}
