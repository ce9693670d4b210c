package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/fuelmeter/internal/ambient"
	"github.com/shaunagostinho/fuelmeter/internal/fuel"
	"github.com/shaunagostinho/fuelmeter/internal/kline"
	"github.com/shaunagostinho/fuelmeter/internal/logger"
	"github.com/shaunagostinho/fuelmeter/internal/meter"
	"github.com/shaunagostinho/fuelmeter/internal/publish"
	"github.com/shaunagostinho/fuelmeter/internal/pulse"
)

const DefaultConfigPath = "/etc/fuelmeter/config.yaml"

// Config holds all fuel meter configuration.
type Config struct {
	mu sync.RWMutex

	KLine   KLineConfig    `yaml:"kline" json:"kline"`
	Meter   MeterConfig    `yaml:"meter" json:"meter"`
	Store   StoreConfig    `yaml:"store" json:"store"`
	Ambient ambient.Config `yaml:"ambient" json:"ambient"`
	Redis   publish.Config `yaml:"redis" json:"redis"`
	Logging logger.Config  `yaml:"logging" json:"logging"`
	Server  ServerConfig   `yaml:"server" json:"server"`

	path string // file path for save/load
}

type KLineConfig struct {
	Type     string `yaml:"type" json:"type"`          // "serial" or "demo"
	PortPath string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	Init     string `yaml:"init" json:"init"` // "slow", "kwp-slow" or "fast"
	Debug    bool   `yaml:"debug" json:"debug"`
}

type MeterConfig struct {
	PeriodMs  int              `yaml:"period_ms" json:"periodMs"`
	Cylinders int              `yaml:"cylinders" json:"cylinders"`
	Injector  string           `yaml:"injector" json:"injector"` // "demo", "gpio" or "none"
	GPIO      pulse.GPIOConfig `yaml:"gpio" json:"gpio"`
}

type StoreConfig struct {
	Path       string `yaml:"path" json:"path"`
	SaveOnExit bool   `yaml:"save_on_exit" json:"saveOnExit"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		KLine: KLineConfig{
			Type:     "demo",
			PortPath: "/dev/ttyUSB0",
			BaudRate: kline.BaudRate,
			Init:     kline.InitSlow.String(),
		},
		Meter: MeterConfig{
			PeriodMs:  int(meter.DefaultPeriod / time.Millisecond),
			Cylinders: fuel.Cylinders,
			Injector:  "demo",
			GPIO: pulse.GPIOConfig{
				Chip:   "gpiochip0",
				Line:   17,
				PullUp: true,
			},
		},
		Store: StoreConfig{
			Path:       "/var/lib/fuelmeter/fuel.db",
			SaveOnExit: false,
		},
		Ambient: ambient.Config{
			Enabled:  false,
			Bus:      1,
			Address:  0x76,
			PollMs:   1000,
			MaxFails: 3,
		},
		Redis: publish.Config{
			Enabled: false,
			Addr:    "localhost:6379",
			Key:     "fuel-meter",
		},
		Logging: logger.Config{
			Enabled:    false,
			Path:       logger.DefaultPath,
			IntervalMs: 0,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig layers the config: defaults, then the YAML file at path, then
// .env files (next to the config, then in the working directory), then the
// environment. A missing or broken YAML file leaves the defaults in place.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	if data, err := os.ReadFile(path); err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	loadEnvFile(filepath.Join(filepath.Dir(path), ".env"))
	loadEnvFile(".env")
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile applies KEY=VALUE lines from path to the process environment.
// Variables that are already set keep their value.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		key = strings.TrimSpace(key)
		if os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(val), `"'`))
	}
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envInt(dst *int) func(string) {
	return func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Printf("[config] ignoring non-numeric %q", v)
		}
	}
}

// envOverrides maps environment variables onto config fields.
func (c *Config) envOverrides() map[string]func(string) {
	str := func(dst *string) func(string) { return func(v string) { *dst = v } }
	flag := func(dst *bool) func(string) { return func(v string) { *dst = envBool(v) } }
	return map[string]func(string){
		"KLINE_TYPE":      str(&c.KLine.Type),
		"KLINE_PORT":      str(&c.KLine.PortPath),
		"KLINE_INIT":      str(&c.KLine.Init),
		"METER_CYLINDERS": envInt(&c.Meter.Cylinders),
		"METER_INJECTOR":  str(&c.Meter.Injector),
		"INJECTOR_CHIP":   str(&c.Meter.GPIO.Chip),
		"INJECTOR_LINE":   envInt(&c.Meter.GPIO.Line),
		"STORE_PATH":      str(&c.Store.Path),
		"REDIS_ADDR":      str(&c.Redis.Addr),
		"REDIS_ENABLED":   flag(&c.Redis.Enabled),
		"AMBIENT_ENABLED": flag(&c.Ambient.Enabled),
		"LISTEN_ADDR":     str(&c.Server.ListenAddr),
		"LOG_ENABLED":     flag(&c.Logging.Enabled),
		"LOG_PATH":        str(&c.Logging.Path),
		"LOG_INTERVAL_MS": envInt(&c.Logging.IntervalMs),
	}
}

func (c *Config) applyEnvOverrides() {
	for key, apply := range c.envOverrides() {
		if v := os.Getenv(key); v != "" {
			apply(v)
		}
	}
}

// InitMode parses the configured handshake.
func (c *Config) InitMode() (kline.InitMode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return kline.ParseInitMode(c.KLine.Init)
}

// Period is the metering period, falling back to the default.
func (c *Config) Period() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Meter.PeriodMs <= 0 {
		return meter.DefaultPeriod
	}
	return time.Duration(c.Meter.PeriodMs) * time.Millisecond
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ToJSON encodes the config for /api/config.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON merges a partial JSON document into the config. Objects
// are merged key by key, so fields the patch leaves out keep their values.
// The config is unchanged when the merged result is invalid.
func (c *Config) UpdateFromJSON(patch []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changes map[string]interface{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return fmt.Errorf("config: patch: %w", err)
	}
	current, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(current, &doc); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	mergeInto(doc, changes)

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: encode merged: %w", err)
	}
	var next Config
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("config: apply: %w", err)
	}
	if _, err := kline.ParseInitMode(next.KLine.Init); err != nil {
		return err
	}
	c.KLine, c.Meter, c.Store = next.KLine, next.Meter, next.Store
	c.Ambient, c.Redis, c.Logging, c.Server = next.Ambient, next.Redis, next.Logging, next.Server
	return nil
}

// mergeInto copies src over dst, descending into objects present in both.
func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		sub, isObj := v.(map[string]interface{})
		target, hasObj := dst[k].(map[string]interface{})
		if isObj && hasObj {
			mergeInto(target, sub)
		} else {
			dst[k] = v
		}
	}
}

// LoggingEnabled reports the current logging switch.
func (c *Config) LoggingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging.Enabled
}
