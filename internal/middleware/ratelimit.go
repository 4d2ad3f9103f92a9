package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"manuscript-review/internal/config"
)

// RateLimiter implements a fixed-window limiter per client IP
type RateLimiter struct {
	enabled  bool
	requests int
	window   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a new rate limiter. Idle visitors are evicted until ctx is done.
func NewRateLimiter(ctx context.Context, cfg *config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		enabled:  cfg.Enabled && cfg.Requests > 0 && cfg.Duration > 0,
		requests: cfg.Requests,
		window:   cfg.Duration,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
	if rl.enabled {
		go rl.cleanupVisitors(ctx)
	}
	return rl
}

// allow records a request from key and reports whether it is within the limit
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok || now.Sub(v.windowStart) >= rl.window {
		rl.visitors[key] = &visitor{windowStart: now, count: 1}
		return true, 0
	}
	if v.count < rl.requests {
		v.count++
		return true, 0
	}
	return false, rl.window - now.Sub(v.windowStart)
}

// Limit rate limits requests based on the client IP
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		ok, retryAfter := rl.allow(clientIP(r))
		if !ok {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanupVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, v := range rl.visitors {
				if now.Sub(v.windowStart) > 3*rl.window {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
