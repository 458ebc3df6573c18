// Package safety guards the simulation edge: per-connection input rate
// limiting, input validation and disconnect snapshots.
package safety

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig configures the fixed-window input limiter.
type LimiterConfig struct {
	Capacity int           // inputs admitted per window
	Window   time.Duration // window length
	StaleAge time.Duration // windows idle this long are swept
}

// DefaultLimiterConfig admits 120 inputs per second: twice a 60 Hz client.
var DefaultLimiterConfig = LimiterConfig{
	Capacity: 120,
	Window:   time.Second,
	StaleAge: time.Minute,
}

type window struct {
	count    int
	end      time.Time
	lastSeen time.Time
}

// RateLimiter counts inputs per connection in fixed windows. Violations
// are dropped and logged, never reported back to the sender.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	config  LimiterConfig
	now     func() time.Time

	logLimiter *rate.Limiter // throttles violation log lines
	rejected   uint64        // atomic
	allowed    uint64        // atomic
}

// NewRateLimiter creates a limiter. A nil clock uses time.Now.
func NewRateLimiter(cfg LimiterConfig, clock func() time.Time) *RateLimiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultLimiterConfig.Capacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultLimiterConfig.Window
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = DefaultLimiterConfig.StaleAge
	}
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{
		windows:    make(map[string]*window),
		config:     cfg,
		now:        clock,
		logLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Allow admits or drops one input from connID.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	now := rl.now()
	w, ok := rl.windows[connID]
	if !ok {
		w = &window{}
		rl.windows[connID] = w
	}
	w.lastSeen = now

	// Open a new window once the old one has expired
	if !now.Before(w.end) {
		w.count = 0
		w.end = now.Add(rl.config.Window)
	}

	if w.count >= rl.config.Capacity {
		rl.mu.Unlock()
		atomic.AddUint64(&rl.rejected, 1)
		if rl.logLimiter.Allow() {
			log.Printf("🚫 Input rate exceeded for connection %s (cap %d/%s)", connID, rl.config.Capacity, rl.config.Window)
		}
		return false
	}
	w.count++
	rl.mu.Unlock()

	atomic.AddUint64(&rl.allowed, 1)
	return true
}

// Forget drops the window for a closed connection.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	delete(rl.windows, connID)
	rl.mu.Unlock()
}

// Sweep removes windows idle longer than StaleAge and returns how many went.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.StaleAge)
	removed := 0
	for id, w := range rl.windows {
		if w.lastSeen.Before(cutoff) {
			delete(rl.windows, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
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

// Stats returns counters for monitoring.
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	tracked := len(rl.windows)
	rl.mu.Unlock()
	return map[string]interface{}{
		"tracked":  tracked,
		"allowed":  atomic.LoadUint64(&rl.allowed),
		"rejected": atomic.LoadUint64(&rl.rejected),
	}
}
