package service

import (
	"sync"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 15 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter throttles login attempts per client IP.
type LoginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*ipLimiter
	now      func() time.Time
	lastGC   time.Time
}

// NewLoginLimiter returns nil when throttling is disabled; a nil limiter allows everything.
func NewLoginLimiter(cfg *config.AuthConfig) *LoginLimiter {
	if cfg.LoginRatePerMinute <= 0 {
		return nil
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = 1
	}
	return &LoginLimiter{
		limit:    rate.Limit(float64(cfg.LoginRatePerMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*ipLimiter),
		now:      time.Now,
	}
}

func (l *LoginLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than limiterIdleTTL. Caller holds mu.
func (l *LoginLimiter) sweep(now time.Time) {
	if now.Sub(l.lastGC) < limiterIdleTTL {
		return
	}
	l.lastGC = now
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
}
