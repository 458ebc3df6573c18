package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	IdleTTL           time.Duration // Limiters unused this long are dropped
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	IdleTTL:           10 * time.Minute,
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter provides IP-based rate limiting for HTTP requests
type IPRateLimiter struct {
	limiters sync.Map // ip -> *ipLimiterEntry
	config   RateLimitConfig
	clock    func() time.Time

	rejected atomic.Uint64
	allowed  atomic.Uint64
}

// NewIPRateLimiter creates a limiter. Call Run to evict idle entries.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig.IdleTTL
	}
	return &IPRateLimiter{config: cfg, clock: time.Now}
}

func (rl *IPRateLimiter) entry(ip string) *ipLimiterEntry {
	if e, ok := rl.limiters.Load(ip); ok {
		return e.(*ipLimiterEntry)
	}
	fresh := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	actual, _ := rl.limiters.LoadOrStore(ip, fresh)
	return actual.(*ipLimiterEntry)
}

// Run evicts idle limiters until ctx is cancelled
func (rl *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Sweep removes limiters idle longer than IdleTTL and returns how many
func (rl *IPRateLimiter) Sweep() int {
	cutoff := rl.clock().Add(-rl.config.IdleTTL).UnixNano()
	removed := 0
	rl.limiters.Range(func(key, value interface{}) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Allow checks if a request from the given IP should be allowed
func (rl *IPRateLimiter) Allow(ip string) bool {
	e := rl.entry(ip)
	e.lastSeen.Store(rl.clock().UnixNano())
	if e.limiter.Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "rate_limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns rate limiter statistics
func (rl *IPRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  rl.allowed.Load(),
		"rejected": rl.rejected.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request.
// X-Forwarded-For is trusted; deploy behind a proxy that overwrites it.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter caps concurrent WebSocket connections per IP and overall
type WebSocketRateLimiter struct {
	connections sync.Map // ip -> *atomic.Int32
	maxPerIP    int
	maxTotal    int
	total       atomic.Int32

	rejected atomic.Uint64
}

// NewWebSocketRateLimiter creates a connection limiter. Zero disables a cap.
func NewWebSocketRateLimiter(maxPerIP, maxTotal int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: maxPerIP, maxTotal: maxTotal}
}

// Acquire reserves a slot for ip. The returned reason is empty on success.
func (wrl *WebSocketRateLimiter) Acquire(ip string) (reason string) {
	if n := int(wrl.total.Add(1)); wrl.maxTotal > 0 && n > wrl.maxTotal {
		wrl.total.Add(-1)
		wrl.rejected.Add(1)
		return "ws_total_limit"
	}

	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)
	for {
		current := counter.Load()
		if wrl.maxPerIP > 0 && int(current) >= wrl.maxPerIP {
			wrl.total.Add(-1)
			wrl.rejected.Add(1)
			return "ws_ip_limit"
		}
		if counter.CompareAndSwap(current, current+1) {
			return ""
		}
	}
}

// Release frees a slot reserved by Acquire
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if val, ok := wrl.connections.Load(ip); ok {
		val.(*atomic.Int32).Add(-1)
		wrl.total.Add(-1)
	}
}

// ConnectionCount returns the open connections for an IP
func (wrl *WebSocketRateLimiter) ConnectionCount(ip string) int {
	if val, ok := wrl.connections.Load(ip); ok {
		return int(val.(*atomic.Int32).Load())
	}
	return 0
}

// GetStats returns WebSocket limiter statistics
func (wrl *WebSocketRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"open":     uint64(max(0, wrl.total.Load())),
		"rejected": wrl.rejected.Load(),
	}
}

// OriginPolicy decides which browser origins may open a WebSocket. Patterns
// follow the CORS list: "*" allows all, and one "*" inside a pattern matches
// any run of characters ("http://localhost:*").
type OriginPolicy struct {
	exact     map[string]struct{}
	wildcards [][2]string // prefix, suffix
	any       bool
}

// NewOriginPolicy compiles the allowed origin patterns
func NewOriginPolicy(patterns []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case pattern == "":
		case pattern == "*":
			p.any = true
		case strings.Contains(pattern, "*"):
			prefix, suffix, _ := strings.Cut(pattern, "*")
			p.wildcards = append(p.wildcards, [2]string{prefix, suffix})
		default:
			p.exact[pattern] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may connect. Requests without an Origin
// header come from non-browser clients and are allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" || p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, w := range p.wildcards {
		if len(origin) >= len(w[0])+len(w[1]) && strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
			return true
		}
	}
	return false
}
