package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/kline"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if cfg.KLine.Type != "demo" || cfg.Server.ListenAddr != ":8080" {
		t.Errorf("expected defaults, got %+v / %+v", cfg.KLine, cfg.Server)
	}
	if cfg.Period() != 600*time.Millisecond {
		t.Errorf("expected 600ms period, got %v", cfg.Period())
	}
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "kline:\n  type: serial\n  init: fast\nmeter:\n  cylinders: 6\n  injector: gpio\n  gpio:\n    chip: gpiochip1\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nSTORE_PATH='/tmp/x.db'\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORE_PATH", "")
	t.Setenv("KLINE_PORT", "/dev/ttyS3")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("INJECTOR_LINE", "22")

	cfg := LoadConfig(path)
	if cfg.KLine.Type != "serial" || cfg.Meter.Cylinders != 6 {
		t.Errorf("YAML not applied: %+v %+v", cfg.KLine, cfg.Meter)
	}
	if m, err := cfg.InitMode(); err != nil || m != kline.InitFast {
		t.Errorf("expected fast init, got %v (%v)", m, err)
	}
	if cfg.KLine.PortPath != "/dev/ttyS3" || !cfg.Redis.Enabled {
		t.Errorf("env overrides not applied: %+v %+v", cfg.KLine, cfg.Redis)
	}
	if cfg.Meter.Injector != "gpio" || cfg.Meter.GPIO.Chip != "gpiochip1" || cfg.Meter.GPIO.Line != 22 || !cfg.Meter.GPIO.PullUp {
		t.Errorf("injector input not configured: %+v", cfg.Meter)
	}
	if cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("expected .env store path, got %q", cfg.Store.Path)
	}
	// unset fields keep their defaults
	if cfg.KLine.BaudRate != kline.BaudRate {
		t.Errorf("expected default baud, got %d", cfg.KLine.BaudRate)
	}
}

func TestUpdateFromJSON(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.UpdateFromJSON([]byte(`{"meter":{"periodMs":1000},"kline":{"init":"kwp-slow"}}`)); err != nil {
		t.Fatal(err)
	}
	if cfg.Period() != time.Second {
		t.Errorf("expected 1s, got %v", cfg.Period())
	}
	if cfg.Meter.Cylinders != 4 || cfg.KLine.PortPath != "/dev/ttyUSB0" {
		t.Error("fields absent from the patch must be preserved")
	}

	if err := cfg.UpdateFromJSON([]byte(`{"kline":{"init":"turbo"}}`)); err == nil {
		t.Error("expected an unknown init mode to be rejected")
	}
	if cfg.KLine.Init != "kwp-slow" {
		t.Errorf("rejected update changed init to %q", cfg.KLine.Init)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := LoadConfig(path)
	cfg.Store.SaveOnExit = true
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	if !LoadConfig(path).Store.SaveOnExit {
		t.Error("saved value not reloaded")
	}
}
