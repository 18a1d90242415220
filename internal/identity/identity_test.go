package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"shooter-arena/internal/config"
)

// fakeChecker counts calls and returns canned verdicts.
type fakeChecker struct {
	mu     sync.Mutex
	calls  int
	agents map[string]Agent
	err    error
}

func (f *fakeChecker) CheckKey(_ context.Context, apiKey string) (Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Agent{}, f.err
	}
	agent, ok := f.agents[apiKey]
	if !ok {
		return Agent{}, ErrKeyRejected
	}
	return agent, nil
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestVerifier builds a verifier with no sweep goroutine.
func newTestVerifier(checker KeyChecker, production bool) *Verifier {
	return &Verifier{
		checker:    checker,
		production: production,
		successTTL: time.Minute,
		failureTTL: time.Minute,
		stopChan:   make(chan struct{}),
	}
}

// TestTestKeyBypass tests that test_ keys skip verification outside production
func TestTestKeyBypass(t *testing.T) {
	checker := &fakeChecker{}
	v := newTestVerifier(checker, false)

	agent, ok := v.Verify(context.Background(), "test_alice")
	if !ok {
		t.Fatal("Expected test_alice to verify outside production")
	}
	if agent.Name != "alice" {
		t.Errorf("Expected agent name alice, got %q", agent.Name)
	}
	if checker.callCount() != 0 {
		t.Errorf("Expected no identity calls for a test key, got %d", checker.callCount())
	}

	if _, ok := v.Verify(context.Background(), "test_"); ok {
		t.Error("A bare test_ prefix should not verify")
	}
	if _, ok := v.Verify(context.Background(), ""); ok {
		t.Error("An empty key should not verify")
	}
}

// TestTestKeyRequiresVerificationInProduction tests that the bypass is dev-only
func TestTestKeyRequiresVerificationInProduction(t *testing.T) {
	checker := &fakeChecker{err: ErrKeyRejected}
	v := newTestVerifier(checker, true)

	if _, ok := v.Verify(context.Background(), "test_alice"); ok {
		t.Error("test_ keys must not bypass verification in production")
	}
	if checker.callCount() != 1 {
		t.Errorf("Expected the production path to hit the checker once, got %d", checker.callCount())
	}
}

// TestVerifyCachesVerdicts tests that repeat lookups stay off the wire
func TestVerifyCachesVerdicts(t *testing.T) {
	checker := &fakeChecker{agents: map[string]Agent{
		"key_good": {Name: "alice", Wallet: "0xabc"},
	}}
	v := newTestVerifier(checker, true)

	for i := 0; i < 3; i++ {
		agent, ok := v.Verify(context.Background(), "key_good")
		if !ok || agent.Name != "alice" || agent.Wallet != "0xabc" {
			t.Fatalf("Verify %d: expected alice/0xabc, got %+v ok=%v", i, agent, ok)
		}
	}
	if checker.callCount() != 1 {
		t.Errorf("Expected one upstream call for three verifies, got %d", checker.callCount())
	}

	for i := 0; i < 3; i++ {
		if _, ok := v.Verify(context.Background(), "key_bad"); ok {
			t.Fatalf("Verify %d: expected key_bad to fail", i)
		}
	}
	if checker.callCount() != 2 {
		t.Errorf("Expected rejections to be cached too, got %d calls", checker.callCount())
	}

	stats := v.Stats()
	if stats.Hits != 4 || stats.Misses != 2 || stats.Checks != 2 {
		t.Errorf("Expected 4 hits / 2 misses / 2 checks, got %+v", stats)
	}
	if stats.CacheSize != 2 {
		t.Errorf("Expected 2 cached verdicts, got %d", stats.CacheSize)
	}
}

// TestVerdictExpiry tests that an expired verdict triggers a re-check
func TestVerdictExpiry(t *testing.T) {
	checker := &fakeChecker{agents: map[string]Agent{"key_good": {Name: "alice"}}}
	v := newTestVerifier(checker, true)
	v.successTTL = 10 * time.Millisecond

	v.Verify(context.Background(), "key_good")
	time.Sleep(25 * time.Millisecond)
	v.Verify(context.Background(), "key_good")

	if checker.callCount() != 2 {
		t.Errorf("Expected an expired verdict to re-check, got %d calls", checker.callCount())
	}
}

// TestFailureLogThrottle tests the one-line-per-key-per-minute rule
func TestFailureLogThrottle(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	checker := &fakeChecker{err: errors.New("connection refused")}
	v := newTestVerifier(checker, true)
	v.failureTTL = 0 // every call goes upstream

	for i := 0; i < 5; i++ {
		v.Verify(context.Background(), "key_flaky")
	}

	if checker.callCount() != 5 {
		t.Fatalf("Expected 5 upstream calls with a zero failure ttl, got %d", checker.callCount())
	}
	if got := strings.Count(buf.String(), "key_flak"); got != 1 {
		t.Errorf("Expected one failure log line for 5 failures, got %d:\n%s", got, buf.String())
	}
}

// TestSweepDropsExpired tests the background expiry sweep
func TestSweepDropsExpired(t *testing.T) {
	v := newTestVerifier(nil, true)
	now := time.Now()

	v.verdicts.Store("old", verdict{valid: true, fetchedAt: now.Add(-2 * time.Minute)})
	v.verdicts.Store("fresh", verdict{valid: true, fetchedAt: now})
	v.lastLog.Store("old", now.Add(-2*time.Minute))

	v.sweep(now)

	if _, ok := v.verdicts.Load("old"); ok {
		t.Error("Expected the expired verdict to be swept")
	}
	if _, ok := v.verdicts.Load("fresh"); !ok {
		t.Error("Expected the fresh verdict to survive the sweep")
	}
	if _, ok := v.lastLog.Load("old"); ok {
		t.Error("Expected the stale throttle stamp to be swept")
	}
}

// TestClientVerify tests the wire format against a stub identity service
func TestClientVerify(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/verify" {
			t.Errorf("Expected POST /verify, got %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode verify body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.APIKey {
		case "key_good":
			json.NewEncoder(w).Encode(map[string]any{
				"valid":         true,
				"agentName":     "alice",
				"walletAddress": "0xabc",
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"valid": false})
		}
	}))
	defer ts.Close()

	client := NewClient(config.IdentityConfig{URL: ts.URL, TimeoutMs: 1_000})

	agent, err := client.CheckKey(context.Background(), "key_good")
	if err != nil {
		t.Fatalf("CheckKey failed: %v", err)
	}
	if agent.Name != "alice" || agent.Wallet != "0xabc" {
		t.Errorf("Expected alice/0xabc, got %+v", agent)
	}

	if _, err := client.CheckKey(context.Background(), "key_unknown"); !errors.Is(err, ErrKeyRejected) {
		t.Errorf("Expected ErrKeyRejected for an unknown key, got %v", err)
	}
}

// TestClientServerError tests that a 5xx surfaces as an error
func TestClientServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(config.IdentityConfig{URL: ts.URL, TimeoutMs: 1_000})
	if _, err := client.CheckKey(context.Background(), "key_any"); err == nil {
		t.Error("Expected an error from a 500 response")
	}
}

// TestVerifierEndToEnd tests verifier and client together against a stub
func TestVerifierEndToEnd(t *testing.T) {
	var calls int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"valid":         true,
			"agentName":     "bob",
			"walletAddress": "0xdef",
		})
	}))
	defer ts.Close()

	cfg := config.DefaultIdentity()
	cfg.URL = ts.URL
	v := NewVerifier(NewClient(cfg), cfg, true)
	defer v.Stop()

	for i := 0; i < 3; i++ {
		agent, ok := v.Verify(context.Background(), "key_real")
		if !ok || agent.Name != "bob" {
			t.Fatalf("Verify %d: expected bob, got %+v ok=%v", i, agent, ok)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected one round trip for three verifies, got %d", calls)
	}
}
