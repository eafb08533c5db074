package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func TestKeyedLimiter_Basic(t *testing.T) {
	t.Parallel()
	clock := newClock()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", Burst: 1, RefillRate: 1, CleanupPeriod: time.Hour, Now: clock.Now})
	defer kl.Stop()

	if !kl.Allow("10.0.0.1") {
		t.Error("first request from 10.0.0.1 denied")
	}
	if kl.Allow("10.0.0.1") {
		t.Error("second request allowed with burst 1")
	}
	if !kl.Allow("10.0.0.2") {
		t.Error("other client should have its own bucket")
	}

	clock.Advance(time.Second)
	if !kl.Allow("10.0.0.1") {
		t.Error("bucket should refill after one second")
	}
}

func TestKeyedLimiter_EmptyKey(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", Burst: 1, RefillRate: 0.001, CleanupPeriod: time.Hour})
	defer kl.Stop()

	for range 5 {
		if !kl.Allow("") {
			t.Fatal("empty key must not be limited")
		}
	}
	if kl.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", kl.ActiveCount())
	}
}

func TestKeyedLimiter_RetryAfter(t *testing.T) {
	t.Parallel()
	clock := newClock()
	kl := NewKeyedLimiter(KeyedConfig{Name: "admin", Burst: 2, RefillRate: 0.5, CleanupPeriod: time.Hour, Now: clock.Now})
	defer kl.Stop()

	if d := kl.RetryAfter("unknown"); d != 0 {
		t.Errorf("RetryAfter(unknown) = %v, want 0", d)
	}
	kl.Allow("c")
	kl.Allow("c")
	if kl.Allow("c") {
		t.Fatal("third request allowed with burst 2")
	}
	if d := kl.RetryAfter("c"); d != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", d)
	}
	// Asking does not consume the token.
	clock.Advance(2 * time.Second)
	if !kl.Allow("c") {
		t.Error("token should be available after RetryAfter")
	}
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	t.Parallel()
	clock := newClock()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	kl := NewKeyedLimiter(KeyedConfig{Name: "api", Burst: 10, RefillRate: 5, CleanupPeriod: time.Hour, Metrics: m, Now: clock.Now})
	defer kl.Stop()

	kl.Allow("a")
	clock.Advance(time.Second)
	kl.Allow("b")
	if kl.ActiveCount() != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", kl.ActiveCount())
	}

	// "a" has been idle for 2s, long enough to refill 10 tokens at 5/s.
	clock.Advance(time.Second)
	if removed := kl.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if kl.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", kl.ActiveCount())
	}
	if got := testutil.ToFloat64(m.RateLimiterClients.WithLabelValues("api")); got != 1 {
		t.Errorf("clients gauge = %v, want 1", got)
	}
}

func TestKeyedLimiter_DropMetric(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	kl := NewKeyedLimiter(KeyedConfig{Name: "admin", Burst: 1, RefillRate: 0.001, CleanupPeriod: time.Hour, Metrics: m})
	defer kl.Stop()

	kl.Allow("c")
	kl.Allow("c")
	kl.Allow("c")
	if got := testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("admin")); got != 2 {
		t.Errorf("rate limited total = %v, want 2", got)
	}
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	clock := newClock()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", Burst: 50, RefillRate: 0.001, CleanupPeriod: time.Hour, Now: clock.Now})
	defer kl.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = map[string]int{}
	)
	for i := range 8 {
		key := fmt.Sprintf("client-%d", i%2)
		wg.Go(func() {
			for range 20 {
				if kl.Allow(key) {
					mu.Lock()
					allowed[key]++
					mu.Unlock()
				}
			}
		})
	}
	wg.Wait()

	for key, n := range allowed {
		if n != 50 {
			t.Errorf("%s allowed %d requests, want exactly the burst of 50", key, n)
		}
	}
}

func TestKeyedLimiter_StopTwice(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", Burst: 1, RefillRate: 1, CleanupPeriod: 10 * time.Millisecond})
	kl.Stop()
	kl.Stop()
}
