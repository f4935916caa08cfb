// Package ratelimit throttles requests per client address with token buckets.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"budget/internal/cache"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops the bucket of a client not seen for this long.
	IdleTTL    time.Duration
	MaxClients int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleTTL:           10 * time.Minute,
		MaxClients:        10000,
	}
}

// Limiter keeps one token bucket per client.
type Limiter struct {
	mu      sync.Mutex
	clients *cache.LRU[*rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewLimiter creates a limiter. Zero fields fall back to DefaultConfig.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	return &Limiter{
		clients: cache.NewLRU[*rate.Limiter](cfg.MaxClients, cfg.IdleTTL),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}
}

func (l *Limiter) bucket(clientIP string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients.Get(clientIP)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	// Set refreshes the idle deadline.
	l.clients.Set(clientIP, b)
	return b
}

// Allow reports whether a request from clientIP may proceed now.
func (l *Limiter) Allow(clientIP string) bool {
	return l.bucket(clientIP).Allow()
}

// retryAfter is the wait in whole seconds before one token is available.
func (l *Limiter) retryAfter() int {
	secs := int(1/float64(l.limit)) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CleanExpired drops idle clients. It implements cache.Cleaner.
func (l *Limiter) CleanExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clients.CleanExpired()
}

// ActiveClients returns the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clients.Size()
}

// Middleware rejects requests over the limit. onLimit writes the response;
// Retry-After is already set when it runs.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
