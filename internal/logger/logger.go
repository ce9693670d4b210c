// Package logger writes one CSV row per metering cycle, rotating files.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

// Logger appends one row per metering cycle to a CSV file in dir. A new file
// is started every maxRowsPerFile rows.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	now      func() time.Time

	out     *os.File
	writer  *csv.Writer
	written int       // rows in the current file
	last    time.Time // time of the last row
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"` // 0 logs every cycle
}

const (
	DefaultPath    = "/var/log/fuelmeter"
	maxRowsPerFile = 100_000 // about 16 h at the default period
)

var csvHeader = []string{
	"timestamp", "cycle",
	"fuel_ul", "dist_m", "inst_l100", "avg_l100", "last6_ul", "last60_ul",
	"period_fuel_ul", "period_dist_m",
	"load_pct", "coolant_c", "rpm", "speed_kph", "intake_c", "maf_gs", "throttle_pct",
	"map_pa", "pulses", "expected_pulses", "avg_pw_us", "dropped",
	"ambient_c", "baro_pa",
}

func New(cfg Config) *Logger {
	l := &Logger{
		dir:     cfg.Path,
		enabled: cfg.Enabled,
		now:     time.Now,
	}
	if l.dir == "" {
		l.dir = DefaultPath
	}
	if cfg.IntervalMs > 0 {
		l.interval = time.Duration(cfg.IntervalMs) * time.Millisecond
	}
	return l
}

// SetEnabled switches logging at runtime. Disabling closes the current file;
// the next enabled Record starts a new one.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on {
		l.closeLocked()
	}
}

func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record appends s unless logging is off or the previous row is more recent
// than the configured interval.
func (l *Logger) Record(s meter.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return
	}
	l.last = now

	if err := l.ensureFile(now); err != nil {
		log.Printf("[logger] %v", err)
		return
	}
	if err := l.writer.Write(buildRow(now, s)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		log.Printf("[logger] flush failed: %v", err)
		return
	}
	l.written++
}

// Close flushes and closes the current file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

// ensureFile opens the first file or rotates a full one.
func (l *Logger) ensureFile(now time.Time) error {
	if l.writer != nil && l.written < maxRowsPerFile {
		return nil
	}
	l.closeLocked()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}
	// The nanosecond suffix keeps two rotations within a second apart.
	name := fmt.Sprintf("fuel_%s_%09d.csv", now.Format("2006-01-02_150405"), now.Nanosecond())
	path := filepath.Join(l.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("header %s: %w", path, err)
	}
	w.Flush()

	l.out, l.writer, l.written = f, w, 0
	log.Printf("[logger] writing %s", path)
	return nil
}

func (l *Logger) closeLocked() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.out != nil {
		if err := l.out.Close(); err != nil {
			log.Printf("[logger] close: %v", err)
		}
		l.out = nil
	}
}

func buildRow(ts time.Time, s meter.Snapshot) []string {
	c := s.Car
	return []string{
		ts.Format(time.RFC3339Nano),
		strconv.FormatUint(s.Cycle, 10),
		ftoa(s.FuelConsumed, 1),
		ftoa(s.Distance, 1),
		optional(s.InstCons, s.InstCons >= 0, 1),
		optional(s.AvgCons, s.AvgCons >= 0, 1),
		ftoa(s.Last6, 1),
		ftoa(s.Last60, 1),
		ftoa(s.PeriodFuel, 2),
		ftoa(s.PeriodDistance, 2),
		strconv.Itoa(int(c.Load)),
		strconv.Itoa(int(c.Coolant)),
		strconv.Itoa(int(c.RPM)),
		strconv.Itoa(int(c.Speed)),
		optional(float64(c.Intake), c.IATValid, 0),
		ftoa(c.MAF, 2),
		strconv.Itoa(int(c.Throttle)),
		strconv.FormatUint(uint64(s.ManifoldPa), 10),
		strconv.Itoa(s.PulseCount),
		strconv.Itoa(s.ExpectedPulses),
		ftoa(s.AvgPulseWidthUS, 0),
		strconv.FormatUint(uint64(s.DroppedPulses), 10),
		optional(s.AmbientTemp, s.AmbientValid, 1),
		optional(s.BaroPa, s.BaroValid, 0),
	}
}

func ftoa(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// optional leaves the column empty when the value is unavailable.
func optional(v float64, ok bool, prec int) string {
	if !ok {
		return ""
	}
	return ftoa(v, prec)
}
