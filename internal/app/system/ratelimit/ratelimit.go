// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows that open on a key's
// first request. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    int
	duration time.Duration
	now      func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when Allowed
}

// New returns a limiter allowing limit requests per duration for each key.
// A non-positive limit or duration disables limiting and New returns nil.
func New(limit int, duration time.Duration) *Limiter {
	if limit <= 0 || duration <= 0 {
		return nil
	}
	l := &Limiter{
		buckets:  make(map[string]*bucket),
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
	go l.sweepLoop(duration * 2)
	return l
}

// Take counts one request for key and reports whether it fits the window.
func (l *Limiter) Take(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.duration)}
		return Decision{Allowed: true, Remaining: l.limit - 1}
	}
	if b.count >= l.limit {
		return Decision{RetryAfter: b.resetAt.Sub(now)}
	}
	b.count++
	return Decision{Allowed: true, Remaining: l.limit - b.count}
}

func (l *Limiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, b := range l.buckets {
			if !now.Before(b.resetAt) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware rejects requests over the limit with 429 and a JSON body.
// key picks the bucket for r; an empty key is not limited. A nil Limiter
// lets everything through.
func (l *Limiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			d := l.Take(k)
			if !d.Allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(d.RetryAfter)))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "too many requests, try again later",
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds rounds up so clients never retry before the window resets.
func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
