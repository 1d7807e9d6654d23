// internal/app/system/massdelete/window.go
package massdelete

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window counts events per key over a sliding time window.
type Window interface {
	// Hit records one event for key at now and returns how many events
	// for key fall within the window ending at now.
	Hit(ctx context.Context, key string, now time.Time) (int, error)
	// MarkAlerted reports true the first time it is called for key within
	// one window duration, and false afterwards until the window passes.
	MarkAlerted(ctx context.Context, key string, now time.Time) (bool, error)
}

// MemoryWindow is an in-process Window. It is safe for concurrent use and
// suitable for a single instance.
type MemoryWindow struct {
	mu       sync.Mutex
	events   map[string][]time.Time
	alerted  map[string]time.Time // key -> alert expiry
	duration time.Duration
}

// NewMemoryWindow creates an in-process sliding window of the given duration.
func NewMemoryWindow(duration time.Duration) *MemoryWindow {
	return &MemoryWindow{
		events:   make(map[string][]time.Time),
		alerted:  make(map[string]time.Time),
		duration: duration,
	}
}

// Hit implements Window.
func (w *MemoryWindow) Hit(_ context.Context, key string, now time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.duration)
	kept := w.events[key][:0]
	for _, t := range w.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.events[key] = kept

	w.sweepLocked(now)
	return len(kept), nil
}

// MarkAlerted implements Window.
func (w *MemoryWindow) MarkAlerted(_ context.Context, key string, now time.Time) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if exp, ok := w.alerted[key]; ok && now.Before(exp) {
		return false, nil
	}
	w.alerted[key] = now.Add(w.duration)
	return true, nil
}

// sweepLocked removes keys with no events inside the window so idle
// actors do not accumulate.
func (w *MemoryWindow) sweepLocked(now time.Time) {
	cutoff := now.Add(-w.duration)
	for key, ts := range w.events {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(w.events, key)
		}
	}
	for key, exp := range w.alerted {
		if !now.Before(exp) {
			delete(w.alerted, key)
		}
	}
}

// RedisWindow is a Window shared by every instance through Redis. Each key
// is a sorted set of event timestamps.
type RedisWindow struct {
	client   redis.UniversalClient
	prefix   string
	duration time.Duration
}

// NewRedisWindow creates a Redis-backed sliding window. Keys are
// namespaced under prefix.
func NewRedisWindow(client redis.UniversalClient, prefix string, duration time.Duration) *RedisWindow {
	if prefix == "" {
		prefix = "coachhub:massdelete"
	}
	return &RedisWindow{client: client, prefix: prefix, duration: duration}
}

func (w *RedisWindow) eventsKey(key string) string  { return w.prefix + ":events:" + key }
func (w *RedisWindow) alertedKey(key string) string { return w.prefix + ":alerted:" + key }

// Hit implements Window.
func (w *RedisWindow) Hit(ctx context.Context, key string, now time.Time) (int, error) {
	k := w.eventsKey(key)
	cutoff := now.Add(-w.duration).UnixMilli()

	pipe := w.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, w.duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// MarkAlerted implements Window.
func (w *RedisWindow) MarkAlerted(ctx context.Context, key string, now time.Time) (bool, error) {
	return w.client.SetNX(ctx, w.alertedKey(key), now.UnixMilli(), w.duration).Result()
}
