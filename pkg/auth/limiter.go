package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles token issuance attempts per client IP.
type LoginLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

// NewLoginLimiter returns a limiter pool; non-positive values fall back
// to 1 attempt/sec with a burst of 5.
func NewLoginLimiter(rps float64, burst int) *LoginLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{rps: rps, burst: burst}
}

func (p *LoginLimiter) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether another attempt from the key is permitted.
func (p *LoginLimiter) Allow(key string) bool {
	return p.get(key).Allow()
}
