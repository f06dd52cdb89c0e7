package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trademate/api/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// windowRateLimiter allows limit calls per key in each fixed window.
type windowRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

func newWindowRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateWindow),
	}
}

// Allow records a call for key and, when refused, how long until the window resets.
func (l *windowRateLimiter) Allow(key string) (bool, time.Duration) {
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
		l.store[key] = rateWindow{count: 1, reset: now.Add(l.window)}
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

func (l *windowRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// rateLimitByUser keys the limiter on the authenticated uid, falling back to the client address.
func rateLimitByUser(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if identity, ok := requestIdentity(r); ok {
				key = identity.UID
			}
			allowed, retryAfter := limiter.Allow(key)
			if !allowed {
				seconds := int(retryAfter.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpx.WriteFailure(r.Context(), w, httpx.NewFailure(http.StatusTooManyRequests, "Too many requests", "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
