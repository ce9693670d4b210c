// Package fuel converts injector pulse widths into injected fuel volume.
//
// The injector is modelled as a flow rate that is zero for the electrical
// deadtime, ramps linearly up to the static flow rate, holds it while the
// needle is fully open, and ramps linearly back down after the pulse ends.
// The volume of one pulse is the area under that curve.
//
//	flow
//	 |          ____________
//	 |         /            \
//	 |________/              \________ time
//	   dead   ramp  static   ramp
//	   time   up    flow     down
//
// All functions are pure and safe to call from any goroutine.
package fuel

import (
	"math"
	"time"
)

// FlowCoefficient returns the flow rate of a fully open injector in µL/ms for
// the given manifold pressure and barometric pressure (both Pa).
//
// The pressure across the injector is the gauge rail pressure plus the
// barometric pressure minus the manifold pressure; the static flow rate is
// corrected by the delta-P square-root law and by the barometric ratio.
func FlowCoefficient(manifoldPa, baroPa float64) float64 {
	if baroPa <= 0 {
		baroPa = BarometricBaseline
	}
	acrossInjector := RailPressure + baroPa - manifoldPa
	if acrossInjector < 0 {
		acrossInjector = 0
	}
	deltaP := math.Sqrt(acrossInjector / StaticFlowPressure)
	baroRatio := baroPa / BarometricBaseline
	return StaticFlowRate * deltaP * baroRatio
}

// PulseVolume returns the fuel in µL injected by one pulse of widthUS
// microseconds at flow coefficient coeff (µL/ms).
//
// Pulses at or beyond FullOpeningTimeUS form a trapezoid: half the ramp-up,
// the static flow duration and half the ramp-down. Shorter pulses never reach
// static flow; their ramps are triangles similar to the full ones, so their
// area scales with the square of (width - deadtime) / ramp-up time.
func PulseVolume(widthUS uint32, coeff float64) float64 {
	if widthUS <= DeadtimeUS {
		return 0
	}
	if widthUS >= FullOpeningTimeUS {
		static := float64(widthUS - FullOpeningTimeUS)
		return (RampUpTimeUS*0.5 + static + RampDownTimeUS*0.5) * 0.001 * coeff
	}

	fullUp := RampUpTimeUS * 0.5 * coeff * 0.001
	fullDown := RampDownTimeUS * 0.5 * coeff * 0.001

	ratio := float64(widthUS-DeadtimeUS) / RampUpTimeUS
	partial := ratio * ratio
	return partial*fullUp + partial*fullDown
}

// PeriodVolume sums PulseVolume over pulses and scales by the cylinder count:
// one observed injector stands for every cylinder in its firing cycle.
func PeriodVolume(pulses []uint32, coeff float64, cylinders int) float64 {
	var sum float64
	for _, w := range pulses {
		sum += PulseVolume(w, coeff) * float64(cylinders)
	}
	return sum
}

// AveragePulseWidth returns the mean of pulses in µs, or 0 for an empty set.
func AveragePulseWidth(pulses []uint32) float64 {
	if len(pulses) == 0 {
		return 0
	}
	var sum uint64
	for _, w := range pulses {
		sum += uint64(w)
	}
	return float64(sum) / float64(len(pulses))
}

// ExpectedInjections returns how many pulses one injector should fire during
// period at rpm. A four-stroke injector fires every other revolution.
func ExpectedInjections(rpm uint16, period time.Duration) int {
	return int(math.Round(float64(rpm) / 60 / 2 * period.Seconds()))
}
