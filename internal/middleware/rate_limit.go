package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type rateAttempt struct {
	count      int
	windowEnds time.Time
}

// IPRateLimiter is a fixed-window per-IP limiter for the import endpoints.
// The attempt map is capped: when full, expired windows are evicted first
// and the map is reset as a last resort so memory stays bounded.
type IPRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	attempt    map[string]rateAttempt
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, window, 10000)
}

func NewIPRateLimiterWithMaxEntries(limit int, window time.Duration, maxEntries int) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &IPRateLimiter{
		limit:      limit,
		window:     window,
		maxEntries: maxEntries,
		attempt:    map[string]rateAttempt{},
	}
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r.RemoteAddr)
			if ip == "" {
				ip = "unknown"
			}

			now := time.Now()
			rl.mu.Lock()
			entry, known := rl.attempt[ip]
			if entry.windowEnds.Before(now) {
				entry = rateAttempt{count: 0, windowEnds: now.Add(rl.window)}
			}
			if !known && len(rl.attempt) >= rl.maxEntries {
				rl.evictLocked(now)
			}
			entry.count++
			rl.attempt[ip] = entry
			rl.mu.Unlock()

			if entry.count > rl.limit {
				writeError(w, r, http.StatusTooManyRequests, "rate_limited", message, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *IPRateLimiter) evictLocked(now time.Time) {
	for ip, entry := range rl.attempt {
		if entry.windowEnds.Before(now) {
			delete(rl.attempt, ip)
		}
	}
	if len(rl.attempt) >= rl.maxEntries {
		rl.attempt = map[string]rateAttempt{}
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
