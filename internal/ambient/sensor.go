// Package ambient reads cabin temperature and barometric pressure from a
// BMP280 on the host's I2C bus.
package ambient

import (
	"context"
	"log"
	"sync"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bmp280"
)

// Config selects the sensor.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Bus      int    `yaml:"bus" json:"bus"`
	Address  uint16 `yaml:"address" json:"address"`
	PollMs   int    `yaml:"poll_ms" json:"pollMs"`
	MaxFails int    `yaml:"max_fails" json:"maxFails"`
}

// reader is the part of bmp280.Device the sensor uses.
type reader interface {
	ReadTemperature() (int32, error) // milli °C
	ReadPressure() (int32, error)    // milli Pa
}

// Sensor keeps the latest reading. Readings go stale after MaxFails
// consecutive failed polls.
type Sensor struct {
	dev      reader
	interval time.Duration
	maxFails int

	mu        sync.Mutex
	temp      float64
	pressure  float64
	tempOK    bool
	presOK    bool
	tempFails int
	presFails int
}

// NewBMP280 configures a BMP280 on bus and returns a sensor polling it.
func NewBMP280(bus drivers.I2C, cfg Config) *Sensor {
	dev := bmp280.New(bus)
	if cfg.Address != 0 {
		dev.Address = cfg.Address
	}
	if !dev.Connected() {
		log.Printf("[ambient] warning: no BMP280 at 0x%02X", dev.Address)
	}
	dev.Configure(bmp280.STANDBY_125MS, bmp280.FILTER_4X, bmp280.SAMPLING_2X, bmp280.SAMPLING_16X, bmp280.MODE_NORMAL)
	return newSensor(&dev, cfg)
}

func newSensor(dev reader, cfg Config) *Sensor {
	interval := time.Duration(cfg.PollMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	if cfg.MaxFails <= 0 {
		cfg.MaxFails = 3
	}
	return &Sensor{dev: dev, interval: interval, maxFails: cfg.MaxFails}
}

// Poll refreshes the readings until ctx is cancelled.
func (s *Sensor) Poll(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Sensor) refresh() {
	t, terr := s.dev.ReadTemperature()
	p, perr := s.dev.ReadPressure()

	s.mu.Lock()
	defer s.mu.Unlock()
	if terr != nil {
		s.tempFails++
		if s.tempFails == s.maxFails {
			log.Printf("[ambient] temperature unavailable: %v", terr)
		}
	} else {
		s.temp, s.tempFails = float64(t)/1000, 0
	}
	if perr != nil {
		s.presFails++
		if s.presFails == s.maxFails {
			log.Printf("[ambient] pressure unavailable: %v", perr)
		}
	} else {
		s.pressure, s.presFails = float64(p)/1000, 0
	}
	s.tempOK = terr == nil || (s.tempOK && s.tempFails < s.maxFails)
	s.presOK = perr == nil || (s.presOK && s.presFails < s.maxFails)
}

// Temperature returns the cabin temperature in °C.
func (s *Sensor) Temperature() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp, s.tempOK
}

// Barometric returns the ambient pressure in Pa.
func (s *Sensor) Barometric() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressure, s.presOK
}
