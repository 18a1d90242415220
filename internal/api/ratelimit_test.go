package api

import (
	"net/http"
	"testing"
	"time"

	"shooter-arena/internal/config"
)

// ============================================================================
// Action Rate Limiter Tests
// ============================================================================

// TestActionLimiterPerTokenIsolation verifies one agent spending its
// budget does not throttle another.
func TestActionLimiterPerTokenIsolation(t *testing.T) {
	al := NewActionRateLimiter(config.RateLimitConfig{
		ActionsPerSecond: 1,
		Burst:            2,
		EntryTTLSeconds:  60,
	})
	defer al.Stop()

	// Drain tokenA's burst
	for i := 0; i < 2; i++ {
		if ok, _ := al.Allow("tokenA"); !ok {
			t.Fatalf("Request %d for tokenA should be within burst", i+1)
		}
	}
	if ok, _ := al.Allow("tokenA"); ok {
		t.Error("tokenA should be rejected after burst exceeded")
	}

	// tokenB has its own bucket
	if ok, _ := al.Allow("tokenB"); !ok {
		t.Error("tokenB should not be affected by tokenA's budget")
	}
}

// TestActionLimiterRetryHint verifies rejections carry a usable wait hint
func TestActionLimiterRetryHint(t *testing.T) {
	al := NewActionRateLimiter(config.RateLimitConfig{
		ActionsPerSecond: 10,
		Burst:            1,
		EntryTTLSeconds:  60,
	})
	defer al.Stop()

	if ok, _ := al.Allow("tokenA"); !ok {
		t.Fatal("First request should be allowed")
	}

	ok, retryMs := al.Allow("tokenA")
	if ok {
		t.Fatal("Second request should be rejected with burst of 1")
	}
	if retryMs <= 0 {
		t.Errorf("Expected a positive retry hint, got %d", retryMs)
	}
	// At 10 actions/sec a slot frees up within 100ms
	if retryMs > 200 {
		t.Errorf("Expected retry hint near 100ms, got %d", retryMs)
	}
}

// TestActionLimiterRecovery verifies the bucket refills over time
func TestActionLimiterRecovery(t *testing.T) {
	al := NewActionRateLimiter(config.RateLimitConfig{
		ActionsPerSecond: 1000,
		Burst:            1,
		EntryTTLSeconds:  60,
	})
	defer al.Stop()

	if ok, _ := al.Allow("tokenA"); !ok {
		t.Fatal("First request should be allowed")
	}

	// At 1000/sec the bucket refills within a millisecond
	time.Sleep(20 * time.Millisecond)

	if ok, _ := al.Allow("tokenA"); !ok {
		t.Error("Request after refill window should be allowed")
	}
}

// TestActionLimiterCleanup verifies idle entries are swept after the TTL
func TestActionLimiterCleanup(t *testing.T) {
	al := NewActionRateLimiter(config.RateLimitConfig{
		ActionsPerSecond: 10,
		Burst:            10,
		EntryTTLSeconds:  1,
	})
	defer al.Stop()

	al.Allow("tokenA")
	al.Allow("tokenB")
	if got := al.EntryCount(); got != 2 {
		t.Fatalf("Expected 2 live entries, got %d", got)
	}

	// Sweep with a synthetic clock well past the TTL
	al.cleanup(time.Now().Add(5 * time.Second))

	if got := al.EntryCount(); got != 0 {
		t.Errorf("Expected idle entries swept, got %d", got)
	}
}

// TestActionLimiterStats verifies the allowed/rejected counters
func TestActionLimiterStats(t *testing.T) {
	al := NewActionRateLimiter(config.RateLimitConfig{
		ActionsPerSecond: 1,
		Burst:            2,
		EntryTTLSeconds:  60,
	})
	defer al.Stop()

	al.Allow("tokenA")
	al.Allow("tokenA")
	al.Allow("tokenA") // over budget

	stats := al.GetStats()
	if stats["allowed"] != 2 {
		t.Errorf("Expected 2 allowed, got %d", stats["allowed"])
	}
	if stats["rejected"] != 1 {
		t.Errorf("Expected 1 rejected, got %d", stats["rejected"])
	}
}

// ============================================================================
// WebSocket Connection Limiter Tests
// ============================================================================

// TestWebSocketLimiterPerIP verifies the concurrent connection cap
func TestWebSocketLimiterPerIP(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	if !wrl.Allow("10.0.0.1") {
		t.Error("First connection should be allowed")
	}
	if !wrl.Allow("10.0.0.1") {
		t.Error("Second connection should be allowed")
	}
	if wrl.Allow("10.0.0.1") {
		t.Error("Third connection should exceed the per-IP cap")
	}

	// Other IPs are unaffected
	if !wrl.Allow("10.0.0.2") {
		t.Error("Different IP should have its own budget")
	}

	// Releasing frees a slot
	wrl.Release("10.0.0.1")
	if !wrl.Allow("10.0.0.1") {
		t.Error("Connection after release should be allowed")
	}

	if got := wrl.GetConnectionCount("10.0.0.1"); got != 2 {
		t.Errorf("Expected 2 tracked connections, got %d", got)
	}
}

// ============================================================================
// Client IP and Origin Tests
// ============================================================================

// TestGetClientIP tests IP extraction across proxy header variants
func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9"},
			want:       "198.51.100.9",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.2, 10.0.0.1"},
			want:       "198.51.100.9",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.10"},
			want:       "198.51.100.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := GetClientIP(req); got != tt.want {
				t.Errorf("Expected IP '%s', got '%s'", tt.want, got)
			}
		})
	}
}

// TestIsAllowedOrigin tests the WebSocket origin policy
func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // headless agent clients send no Origin
		{"http://localhost", true},
		{"http://localhost:3000", true},
		{"http://localhost:9999", true},
		{"http://127.0.0.1:3000", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		if got := IsAllowedOrigin(tt.origin); got != tt.want {
			t.Errorf("IsAllowedOrigin(%q): expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}
