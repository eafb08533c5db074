// Package ratelimit limits API requests per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

const defaultCleanupPeriod = 5 * time.Minute

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name labels the limiter in metrics ("api", "admin").
	Name string

	// Token bucket settings. RefillRate is tokens per second.
	Burst      int
	RefillRate float64

	// CleanupPeriod is how often idle clients are forgotten.
	CleanupPeriod time.Duration

	Metrics *metrics.Metrics
	Now     func() time.Time
}

// KeyedLimiter keeps one token bucket per key, usually the client IP.
type KeyedLimiter struct {
	cfg      KeyedConfig
	mu       sync.Mutex
	entries  map[string]*keyedEntry
	stopCh   chan struct{}
	stopOnce sync.Once
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter starts a limiter and its cleanup loop. Call Stop when done.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = defaultCleanupPeriod
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	kl := &KeyedLimiter{
		cfg:     cfg,
		entries: make(map[string]*keyedEntry),
		stopCh:  make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Allow consumes a token for key. An empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	now := kl.cfg.Now()

	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = &keyedEntry{limiter: rate.NewLimiter(rate.Limit(kl.cfg.RefillRate), kl.cfg.Burst)}
		kl.entries[key] = entry
	}
	entry.lastSeen = now
	kl.mu.Unlock()

	if entry.limiter.AllowN(now, 1) {
		return true
	}
	kl.cfg.Metrics.RecordRateLimited(kl.cfg.Name)
	return false
}

// RetryAfter is how long key waits for its next token.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	kl.mu.Unlock()
	if !ok {
		return 0
	}
	now := kl.cfg.Now()
	r := entry.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}

// Sweep forgets keys whose bucket has refilled since they were last seen.
func (kl *KeyedLimiter) Sweep() int {
	idle := kl.idleAfter()
	now := kl.cfg.Now()

	kl.mu.Lock()
	removed := 0
	for key, entry := range kl.entries {
		if now.Sub(entry.lastSeen) >= idle {
			delete(kl.entries, key)
			removed++
		}
	}
	active := len(kl.entries)
	kl.mu.Unlock()

	kl.cfg.Metrics.SetRateLimiterClients(kl.cfg.Name, active)
	return removed
}

// idleAfter is the time an empty bucket takes to fill again.
func (kl *KeyedLimiter) idleAfter() time.Duration {
	if kl.cfg.RefillRate <= 0 {
		return kl.cfg.CleanupPeriod
	}
	return time.Duration(float64(kl.cfg.Burst) / kl.cfg.RefillRate * float64(time.Second))
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.Sweep()
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}
