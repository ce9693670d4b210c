package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/ecu"
	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

func readCSV(t *testing.T, dir string) [][][]string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "fuel_*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	var files [][][]string
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		files = append(files, rows)
	}
	return files
}

func snapshot(cycle uint64) meter.Snapshot {
	return meter.Snapshot{
		Stats: meter.Stats{FuelConsumed: 1500, Distance: 250, InstCons: -1, AvgCons: 0.6},
		Car:   ecu.CarSample{RPM: 3000, Speed: 50, Intake: 25, IATValid: true},
		Cycle: cycle,
	}
}

func newTestLogger(dir string, interval int, clock *time.Time) *Logger {
	l := New(Config{Enabled: true, Path: dir, IntervalMs: interval})
	l.now = func() time.Time { return *clock }
	return l
}

func TestRecord_WritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLogger(dir, 0, &clock)
	l.Record(snapshot(1))
	l.Close()

	files := readCSV(t, dir)
	if len(files) != 1 || len(files[0]) != 2 {
		t.Fatalf("expected one file with header and row, got %v", files)
	}
	head, row := files[0][0], files[0][1]
	col := func(name string) string {
		for i, h := range head {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %s", name)
		return ""
	}
	if col("cycle") != "1" || col("rpm") != "3000" || col("intake_c") != "25" {
		t.Errorf("unexpected row %v", row)
	}
	if col("inst_l100") != "" {
		t.Errorf("undefined consumption should be empty, got %q", col("inst_l100"))
	}
	if col("avg_l100") != "0.6" {
		t.Errorf("expected avg 0.6, got %q", col("avg_l100"))
	}
}

func TestRecord_IntervalGate(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLogger(dir, 1000, &clock)
	for i := 0; i < 5; i++ {
		l.Record(snapshot(uint64(i)))
		clock = clock.Add(600 * time.Millisecond)
	}
	l.Close()

	// t = 0, 1.2, 2.4 s
	files := readCSV(t, dir)
	if len(files) != 1 || len(files[0]) != 4 {
		t.Fatalf("expected 3 rows after header, got %v", files)
	}
}

func TestRecord_Disabled(t *testing.T) {
	dir := t.TempDir()
	clock := time.Now()
	l := newTestLogger(dir, 0, &clock)
	l.SetEnabled(false)
	l.Record(snapshot(1))
	if files := readCSV(t, dir); len(files) != 0 {
		t.Errorf("expected no files while disabled, got %d", len(files))
	}
}

func TestRecord_Rotates(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLogger(dir, 0, &clock)
	l.Record(snapshot(1))
	l.written = maxRowsPerFile
	clock = clock.Add(time.Second)
	l.Record(snapshot(2))
	l.Close()

	if files := readCSV(t, dir); len(files) != 2 {
		t.Errorf("expected rotation into a second file, got %d files", len(files))
	}
}
