package fuel

// Engine and injector constants for the 2005 Opel Corsa Z12XEP the meter was
// calibrated on. Injector timings were measured on a test stand with an
// oscilloscope and a vibration sensor; the deadtime is an estimate.
const (
	DisplacementCC = 1229
	Cylinders      = 4

	// Pressures in Pa.
	BarometricBaseline  = 100000 // sea level
	RailPressure        = 400000 // gauge, 5 bar absolute at 1 bar ambient
	StaticFlowPressure  = 400000 // pressure across the injector for StaticFlowRate
	DefaultManifoldPa   = 60000  // used when load or RPM is missing
	StaticFlowRateMLMin = 154.0  // mL/min at StaticFlowPressure

	// StaticFlowRate in µL/ms (same as mL/s).
	StaticFlowRate = StaticFlowRateMLMin / 60

	// Injector timings in µs.
	FullOpeningTimeUS = 1400 // pulse start to needle at top
	FullClosingTimeUS = 600  // pulse end to needle at bottom
	DeadtimeUS        = 750  // no flow below this pulse width
	RampUpTimeUS      = FullOpeningTimeUS - DeadtimeUS
	RampDownTimeUS    = FullClosingTimeUS
)
