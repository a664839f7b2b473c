package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CounterStore is a shared fixed-window request counter. Incr must be atomic:
// with multiple service instances sharing one store, the limit holds globally
// only if concurrent increments never lose updates. A process-local map
// cannot provide that, which is why the store is pluggable.
type CounterStore interface {
	// Incr increments the counter for key in the window starting at
	// windowStart and returns the new count.
	Incr(ctx context.Context, key string, windowStart time.Time) (int64, error)
}

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each fixed window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Store holds the shared counters. If nil, a process-local in-memory
	// store is used; fine for a single instance, incorrect across replicas.
	Store CounterStore
}

// memCounterStore is the process-local CounterStore used when no shared store
// is configured.
type memCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
}

type memCounter struct {
	windowStart time.Time
	count       int64
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counters: make(map[string]*memCounter)}
}

func (s *memCounterStore) Incr(_ context.Context, key string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.windowStart.Equal(windowStart) {
		c = &memCounter{windowStart: windowStart}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// cleanup removes counters whose windows ended before cutoff.
func (s *memCounterStore) cleanup(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		if c.windowStart.Before(cutoff) {
			delete(s.counters, key)
		}
	}
}

// startCleanup launches a background goroutine that periodically removes
// expired counters. It stops when ctx is cancelled.
func (s *memCounterStore) startCleanup(ctx context.Context, window time.Duration) {
	interval := 2 * window
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.cleanup(now.Add(-interval))
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key fixed-window rate
// limit. When the limit is exceeded, it responds with 429 Too Many Requests
// and a JSON body. Every response includes X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset headers.
//
// A store failure fails open: the request is allowed and the error logged,
// so a datastore hiccup never takes the whole API down.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	if cfg.Store == nil {
		cfg.Store = newMemCounterStore()
	}
	return rateLimitMiddleware(cfg)
}

// RateLimitWithCleanup is like RateLimit but, when falling back to the
// in-memory store, additionally starts a background goroutine that evicts
// expired counters. The goroutine stops when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	if cfg.Store == nil {
		mem := newMemCounterStore()
		mem.startCleanup(ctx, cfg.Window)
		cfg.Store = mem
	}
	return rateLimitMiddleware(cfg)
}

func rateLimitMiddleware(cfg RateLimitConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			now := time.Now()
			windowStart := now.Truncate(cfg.Window)
			resetAt := windowStart.Add(cfg.Window)

			count, err := cfg.Store.Incr(r.Context(), key, windowStart)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed, allowing request",
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(cfg.Max) - count
			if remaining < 0 {
				remaining = 0
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if count > int64(cfg.Max) {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    429,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// defaultKeyFunc extracts the client IP from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
