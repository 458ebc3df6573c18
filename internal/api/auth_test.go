package api

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

// TestTokenRoundTrip verifies issued tokens verify to the same actor
func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)

	token, expires, err := ti.Issue("alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Errorf("Expected future expiry, got %v", expires)
	}
	got, err := ti.Verify(token)
	if err != nil || got != "alice" {
		t.Errorf("Expected alice, got %q (%v)", got, err)
	}

	other := NewTokenIssuer("different", time.Hour)
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken under another secret, got %v", err)
	}
}

// TestTokenRejections verifies malformed, tampered and expired tokens fail
func TestTokenRejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ti := NewTokenIssuer("secret", time.Minute)
	ti.clock = func() time.Time { return now }

	token, _, err := ti.Issue("bob")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	// flip a character in the middle of the signature segment
	k := len(token) - 10
	swap := byte('A')
	if token[k] == 'A' {
		swap = 'B'
	}
	tampered := token[:k] + string(swap) + token[k+1:]

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrNoToken},
		{"not a jwt", "!!!", ErrInvalidToken},
		{"tampered", tampered, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ti.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	now = now.Add(2 * time.Minute)
	if _, err := ti.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	if _, _, err := ti.Issue(" "); err == nil {
		t.Error("Expected blank actor id to be refused")
	}
}

// TestIdentify verifies header and query token sources
func TestIdentify(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)
	token, _, _ := ti.Issue("carol")

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if got, err := ti.Identify(r); err != nil || got != "carol" {
		t.Errorf("Expected carol from header, got %q (%v)", got, err)
	}

	r = httptest.NewRequest("GET", "/ws?token="+token, nil)
	if got, err := ti.Identify(r); err != nil || got != "carol" {
		t.Errorf("Expected carol from query, got %q (%v)", got, err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic "+token)
	if _, err := ti.Identify(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for basic scheme, got %v", err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := ti.Identify(r); !errors.Is(err, ErrNoToken) {
		t.Errorf("Expected ErrNoToken, got %v", err)
	}
}

// TestOriginPolicy verifies exact, wildcard and empty origins
func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"http://localhost:*", "https://duel.example", "https://*.duel.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://duel.example", true},
		{"HTTPS://DUEL.EXAMPLE", true},
		{"https://play.duel.example", true},
		{"https://evil.example", false},
		{"http://localhost", false},
		{"https://duel.example.evil", false},
	}
	for _, tt := range tests {
		if got := p.Allowed(tt.origin); got != tt.want {
			t.Errorf("Allowed(%q): expected %v, got %v", tt.origin, tt.want, got)
		}
	}

	if !NewOriginPolicy([]string{"*"}).Allowed("https://anything") {
		t.Error("Expected * to allow any origin")
	}
}

// TestWebSocketRateLimiter verifies per-IP and total caps
func TestWebSocketRateLimiter(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2, 3)

	for k := 0; k < 2; k++ {
		if reason := wrl.Acquire("1.1.1.1"); reason != "" {
			t.Fatalf("Acquire %d refused: %s", k, reason)
		}
	}
	if reason := wrl.Acquire("1.1.1.1"); reason != "ws_ip_limit" {
		t.Errorf("Expected ws_ip_limit, got %q", reason)
	}
	if reason := wrl.Acquire("2.2.2.2"); reason != "" {
		t.Errorf("Expected second IP admitted, got %q", reason)
	}
	if reason := wrl.Acquire("3.3.3.3"); reason != "ws_total_limit" {
		t.Errorf("Expected ws_total_limit, got %q", reason)
	}

	wrl.Release("1.1.1.1")
	if got := wrl.ConnectionCount("1.1.1.1"); got != 1 {
		t.Errorf("Expected 1 connection after release, got %d", got)
	}
	if reason := wrl.Acquire("3.3.3.3"); reason != "" {
		t.Errorf("Expected slot freed by release, got %q", reason)
	}
	if stats := wrl.GetStats(); stats["rejected"] != 2 || stats["open"] != 3 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}

// TestIPRateLimiterSweep verifies idle limiters are evicted
func TestIPRateLimiterSweep(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	rl.clock = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") {
		t.Fatal("Expected first request allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("Expected burst exhausted")
	}

	now = now.Add(2 * time.Minute)
	if n := rl.Sweep(); n != 1 {
		t.Errorf("Expected 1 limiter swept, got %d", n)
	}
}
