package api

import (
	"sync"

	"quickcourt/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter keeps one token bucket per client key. Buckets are
// created on first use and live for the process lifetime.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	cfg     *config.APIConfig
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*rate.Limiter),
		cfg:     cfg,
	}
}

// limiterFor returns the bucket for key, creating it if needed.
func (l *rateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets[key]; ok {
		return lim
	}

	burst := l.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	lim := rate.NewLimiter(rate.Limit(l.cfg.RateLimit.RPS), burst)
	l.buckets[key] = lim
	return lim
}
