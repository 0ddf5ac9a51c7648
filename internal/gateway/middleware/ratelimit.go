package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"convwin/internal/gateway/handlers"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained number of requests allowed per minute.
	RequestsPerMinute int
	// Burst is the maximum burst size.
	Burst int
	// Enabled enables or disables rate limiting.
	Enabled bool
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the default rate limiter configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             10,
		Enabled:           true,
		CleanupInterval:   5 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-client rate limiting.
type RateLimiter struct {
	config  RateLimiterConfig
	limit   rate.Limit
	clients map[string]*client
	mu      sync.Mutex
	stopCh  chan struct{}
	stop    sync.Once
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}

	rl := &RateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		clients: make(map[string]*client),
		stopCh:  make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go rl.cleanup()
	}

	return rl
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.stopCh) })
}

// cleanup periodically forgets clients that have been idle for two intervals.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.prune(now)
		}
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.config.CleanupInterval*2 {
			delete(rl.clients, ip)
		}
	}
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.config.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Allow checks if a request from the given IP is allowed.
// Returns (allowed, remaining tokens, time at which the bucket is full again).
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := time.Now()
	if !rl.config.Enabled {
		return true, rl.config.RequestsPerMinute, now.Add(time.Minute)
	}

	lim := rl.limiter(ip, now)
	allowed := lim.AllowN(now, 1)

	tokens := lim.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	missing := float64(rl.config.Burst) - tokens
	reset := now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))

	if !allowed {
		return false, 0, reset
	}
	return true, int(math.Floor(tokens)), reset
}

// RateLimit returns a middleware that rate limits requests.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetTime := rl.Allow(getClientIP(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds())+1, 10))
			handlers.SendError(w, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
