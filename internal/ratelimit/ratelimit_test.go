package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "key_abc123"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}

	if limiter.Allow(key) {
		t.Error("request past the burst should be denied")
	}

	// One token refills per second at 60/min.
	time.Sleep(time.Second)

	if !limiter.Allow(key) {
		t.Error("request after refill should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("key_tenant_a")
	}

	if limiter.Allow("key_tenant_a") {
		t.Error("exhausted key should be limited")
	}
	if !limiter.Allow("key_tenant_b") {
		t.Error("a fresh key must not inherit another key's exhaustion")
	}
}

func TestLimiterRefillRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "key_refill"

	if !limiter.Allow(key) {
		t.Error("first request should be allowed")
	}
	if limiter.Allow(key) {
		t.Error("second immediate request should be denied")
	}

	// 600/min is 10 tokens per second.
	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow(key) {
		t.Error("request after refill window should be allowed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("expected burst size 10, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}
