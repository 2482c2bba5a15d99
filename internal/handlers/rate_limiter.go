package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/httpx"
)

// fixedWindowLimiter counts requests per key in fixed windows.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) *fixedWindowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

// Allow records a request for key. When the window is exhausted it returns false and
// the time left until the window resets.
func (l *fixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true, 0
	}

	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.store[key] = entry
	return true, 0
}

func (l *fixedWindowLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// RateLimitOption customises RateLimitPerRequester.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	clock  func() time.Time
	window time.Duration
}

// WithRateLimitClock overrides the clock used to open windows.
func WithRateLimitClock(clock func() time.Time) RateLimitOption {
	return func(cfg *rateLimitConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithRateLimitWindow overrides the default one minute window.
func WithRateLimitWindow(window time.Duration) RateLimitOption {
	return func(cfg *rateLimitConfig) {
		if window > 0 {
			cfg.window = window
		}
	}
}

// RateLimitPerRequester throttles requests per authenticated user, falling back to the
// client address. A non-positive limit disables throttling.
func RateLimitPerRequester(limit int, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := rateLimitConfig{clock: time.Now, window: time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	limiter := newFixedWindowLimiter(limit, cfg.window, cfg.clock)

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := limiter.Allow(requesterKey(r))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests).AsRetryable())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds up so a client waiting the advertised time lands in the next window.
func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func requesterKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return "user:" + identity.UID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
