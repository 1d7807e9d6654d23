// Package timeouts provides centralized timeout values for handler and
// job I/O.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads, lookups, compare-and-set writes
//   - Medium: list queries and multi-step lifecycle operations
//   - Long: sweeps and purges that scan a collection
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 60 * time.Second
)

var mu sync.RWMutex

var current = Config{
	Ping:   DefaultPing,
	Short:  DefaultShort,
	Medium: DefaultMedium,
	Long:   DefaultLong,
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return current.Ping
}

// Short returns the timeout for single-document operations.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return current.Short
}

// Medium returns the timeout for list queries and lifecycle operations
// that read, write and audit.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return current.Medium
}

// Long returns the timeout for collection sweeps.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return current.Long
}

// Configure sets custom timeout values. Zero values in the config are
// ignored. Call during startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	apply(&current.Ping, cfg.Ping)
	apply(&current.Short, cfg.Short)
	apply(&current.Medium, cfg.Medium)
	apply(&current.Long, cfg.Long)
}

func apply(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = Config{Ping: DefaultPing, Short: DefaultShort, Medium: DefaultMedium, Long: DefaultLong}
}

// ConfigureFromEnv reads COACHHUB_TIMEOUT_PING, _SHORT, _MEDIUM and _LONG
// (Go duration strings) and returns how many were applied. Unset or
// invalid values are ignored.
func ConfigureFromEnv() int {
	vars := []struct {
		name string
		dst  *time.Duration
	}{
		{"COACHHUB_TIMEOUT_PING", &current.Ping},
		{"COACHHUB_TIMEOUT_SHORT", &current.Short},
		{"COACHHUB_TIMEOUT_MEDIUM", &current.Medium},
		{"COACHHUB_TIMEOUT_LONG", &current.Long},
	}

	mu.Lock()
	defer mu.Unlock()
	configured := 0
	for _, v := range vars {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			*v.dst = d
			configured++
		}
	}
	return configured
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithTimeout creates a context with timeout whose cancel function logs a
// warning if the deadline was hit.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), log, "integrity sweep")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
