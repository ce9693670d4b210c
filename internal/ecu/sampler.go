// Package ecu reads the engine parameters the fuel meter needs from the
// vehicle's ECU and provides a simulated vehicle for running without one.
package ecu

import (
	"log"
	"time"
)

// InterPIDDelay separates consecutive PID requests.
const InterPIDDelay = 10 * time.Millisecond

// Sampler acquires one CarSample per call. It keeps the previous sample so
// that a field whose read fails keeps its last value.
type Sampler struct {
	client PIDReader
	last   CarSample
	sleep  func(time.Duration)
}

func NewSampler(client PIDReader) *Sampler {
	return &Sampler{client: client, sleep: time.Sleep}
}

// Sample reads load, coolant, RPM, speed, intake temperature, MAF and
// throttle in that order. A failed read keeps the previous value except for
// speed, which drops to zero so that no distance is counted on stale data.
func (s *Sampler) Sample() CarSample {
	d := s.last
	d.CanCalcMAP = true
	attempts, successes := d.Attempts, d.Successes

	read := func(pid byte, n int) bool {
		d.Attempts++
		if err := s.client.PID(pid, n); err != nil {
			log.Printf("[ecu] PID 0x%02X: %v", pid, err)
			return false
		}
		d.Successes++
		return true
	}

	if read(PIDLoad, 1) {
		d.Load = uint8(uint16(s.client.Uint8()) * 100 / 255)
	} else {
		d.CanCalcMAP = false
	}
	s.sleep(InterPIDDelay)

	if read(PIDCoolant, 1) {
		d.Coolant = int16(s.client.Uint8()) - 40
	}
	s.sleep(InterPIDDelay)

	if read(PIDRPM, 2) {
		d.RPM = s.client.Uint16() / 4
	} else {
		d.CanCalcMAP = false
	}
	s.sleep(InterPIDDelay)

	if read(PIDSpeed, 1) {
		d.Speed = s.client.Uint8()
	} else {
		d.Speed = 0
	}
	s.sleep(InterPIDDelay)

	if read(PIDIntake, 1) {
		d.Intake = int16(s.client.Uint8()) - 40
		d.IATValid = true
	}
	s.sleep(InterPIDDelay)

	if read(PIDMAF, 2) {
		d.MAF = float64(s.client.Uint16()) / 100
	}
	s.sleep(InterPIDDelay)

	if read(PIDThrottle, 1) {
		d.Throttle = uint8(uint16(s.client.Uint8()) * 100 / 255)
	}

	if got, want := d.Successes-successes, d.Attempts-attempts; got != want {
		log.Printf("[ecu] warning: %d/%d PID reads succeeded this cycle (%d/%d total)",
			got, want, d.Successes, d.Attempts)
	}

	s.last = d
	return d
}
