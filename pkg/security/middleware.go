package security

import (
	"net"
	"net/http"
	"sync"
	"time"

	"parley/pkg/logger"
)

// GateConfig controls the pre-dispatch request gates.
type GateConfig struct {
	// TimeGate rejects requests outside [OpenHour, CloseHour) local time.
	TimeGateEnabled bool
	OpenHour        int
	CloseHour       int
	// RateGate caps POSTs per client IP inside a trailing window.
	RateGateEnabled bool
	PostsPerMinute  int
	Window          time.Duration
}

// Gate applies the time-of-day and sliding-window rate gates ahead of
// route dispatch. The rate window is an in-process map of POST
// timestamps per client IP; under concurrent requests from one IP the
// cap is best-effort, not a hard guarantee.
type Gate struct {
	cfg GateConfig
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewGate builds a Gate, applying the documented defaults: window
// [18,21), 5 POSTs per 60 seconds.
func NewGate(cfg GateConfig) *Gate {
	if cfg.CloseHour == 0 && cfg.OpenHour == 0 {
		cfg.OpenHour, cfg.CloseHour = 18, 21
	}
	if cfg.PostsPerMinute <= 0 {
		cfg.PostsPerMinute = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	return &Gate{cfg: cfg, Now: time.Now, windows: make(map[string][]time.Time)}
}

// Middleware returns the gate as a mux-compatible middleware. Liveness
// probes bypass both gates.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		if r.URL.Path == "/healthz" && r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		if g.cfg.TimeGateEnabled && !g.hourOpen() {
			logger.Warn("request_blocked", "reason", "outside_allowed_hours", "path", r.URL.Path)
			http.Error(w, `{"error":"service not available at this hour"}`, http.StatusForbidden)
			return
		}
		if g.cfg.RateGateEnabled && r.Method == http.MethodPost && !g.allowPost(clientIP(r)) {
			logger.Warn("rate_limited", "remote", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hourOpen reports whether the local wall-clock hour is inside the
// allowed window. Stateless; no memory across requests.
func (g *Gate) hourOpen() bool {
	h := g.Now().Hour()
	return h >= g.cfg.OpenHour && h < g.cfg.CloseHour
}

// allowPost records the POST and reports whether it fits in the
// trailing window. Accepted POSTs extend the stored window; entries
// older than the window expire on access.
func (g *Gate) allowPost(key string) bool {
	now := g.Now()
	cutoff := now.Add(-g.cfg.Window)
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.windows[key][:0]
	for _, ts := range g.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= g.cfg.PostsPerMinute {
		g.windows[key] = kept
		return false
	}
	g.windows[key] = append(kept, now)
	return true
}

func clientIP(r *http.Request) string {
	// Expect direct connection; ignore X-Forwarded-For
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
