package ecu

import "fmt"

// PIDReader is the part of the K-line client the sampler needs. After a
// successful PID call the payload is available through Uint8 and Uint16.
type PIDReader interface {
	PID(pid byte, retLen int) error
	Uint8() uint8
	Uint16() uint16
}

// Mode 01 parameters read every cycle.
const (
	PIDLoad     = 0x04
	PIDCoolant  = 0x05
	PIDRPM      = 0x0C
	PIDSpeed    = 0x0D
	PIDIntake   = 0x0F
	PIDMAF      = 0x10
	PIDThrottle = 0x11
)

// CarSample is one cycle of vehicle telemetry.
type CarSample struct {
	Load     uint8   `json:"load"`     // %
	Coolant  int16   `json:"coolant"`  // °C
	RPM      uint16  `json:"rpm"`      // rev/min
	Speed    uint8   `json:"speed"`    // km/h
	Intake   int16   `json:"intake"`   // °C
	MAF      float64 `json:"maf"`      // g/s
	Throttle uint8   `json:"throttle"` // %

	// Attempts and Successes count PID reads since start, one per field.
	Attempts  uint32 `json:"attempts"`
	Successes uint32 `json:"successes"`

	// CanCalcMAP is true when both load and RPM were read this cycle.
	CanCalcMAP bool `json:"canCalcMap"`
	// IATValid is true once an intake temperature has been read, so that
	// 0 °C can be told apart from no reply.
	IATValid bool `json:"iatValid"`
}

func (s CarSample) String() string {
	return fmt.Sprintf("load=%d%% clt=%d rpm=%d speed=%d iat=%d maf=%.2f tps=%d (%d/%d)",
		s.Load, s.Coolant, s.RPM, s.Speed, s.Intake, s.MAF, s.Throttle, s.Successes, s.Attempts)
}
