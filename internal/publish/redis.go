// Package publish mirrors each metering cycle into a Redis hash and
// announces it on a channel of the same name.
package publish

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

// Config selects the Redis server and the hash/channel name.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Key     string `yaml:"key" json:"key"`
}

// Redis writes snapshots to one hash. Publish may be called from any
// goroutine.
type Redis struct {
	client *redis.Client
	key    string
	mu     sync.Mutex
}

// Dial connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*Redis, error) {
	if cfg.Key == "" {
		cfg.Key = "fuel-meter"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("publish: connect to %s: %w", cfg.Addr, err)
	}
	log.Printf("[redis] connected to %s, key %q", cfg.Addr, cfg.Key)
	return &Redis{client: client, key: cfg.Key}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Publish stores the summary of s and notifies subscribers.
func (r *Redis) Publish(ctx context.Context, s meter.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.key, Fields(s))
	pipe.Publish(ctx, r.key, "summary")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish: cycle %d: %w", s.Cycle, err)
	}
	return nil
}

// Fields is the hash content for one snapshot. Undefined consumption is
// written as an empty string.
func Fields(s meter.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"cycle":           s.Cycle,
		"fuel-consumed":   strconv.FormatFloat(s.FuelConsumed, 'f', 1, 64),
		"distance":        strconv.FormatFloat(s.Distance, 'f', 1, 64),
		"inst-cons":       consumption(s.InstCons),
		"avg-cons":        consumption(s.AvgCons),
		"last-6s":         strconv.FormatFloat(s.Last6, 'f', 1, 64),
		"last-60s":        strconv.FormatFloat(s.Last60, 'f', 1, 64),
		"rpm":             s.Car.RPM,
		"speed":           s.Car.Speed,
		"pulse-count":     s.PulseCount,
		"pulse-delta":     s.PulseDelta(),
		"avg-pulse-width": strconv.FormatFloat(s.AvgPulseWidthUS, 'f', 0, 64),
	}
}

func consumption(v float64) string {
	if v < 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
