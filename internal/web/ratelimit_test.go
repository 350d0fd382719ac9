package web

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// Rate Limiter Tests
// ----------------------------------------------------------------------------

func newTestLimiter(t *testing.T, perMinute int, now *time.Time) *rateLimiter {
	t.Helper()
	rl := newRateLimiter(perMinute)
	rl.now = func() time.Time { return *now }
	t.Cleanup(rl.close)
	return rl
}

func TestRateLimiter_Burst(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 3, &now)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.allow("1.2.3.4"); !ok {
			t.Fatalf("request %d denied", i+1)
		}
	}

	ok, wait := rl.allow("1.2.3.4")
	if ok {
		t.Fatal("fourth request allowed")
	}
	if wait < 19*time.Second || wait > 21*time.Second {
		t.Errorf("wait = %v, want about 20s", wait)
	}

	if ok, _ := rl.allow("5.6.7.8"); !ok {
		t.Error("other ip denied")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 2, &now)

	rl.allow("1.2.3.4")
	rl.allow("1.2.3.4")
	if ok, _ := rl.allow("1.2.3.4"); ok {
		t.Fatal("third request allowed")
	}

	now = now.Add(31 * time.Second)
	if ok, _ := rl.allow("1.2.3.4"); !ok {
		t.Fatal("request after refill denied")
	}
	if ok, _ := rl.allow("1.2.3.4"); ok {
		t.Error("only one token should have refilled")
	}
}

func TestRateLimiter_DeniedDoesNotConsume(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 1, &now)

	rl.allow("1.2.3.4")
	for i := 0; i < 5; i++ {
		rl.allow("1.2.3.4")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := rl.allow("1.2.3.4"); !ok {
		t.Error("denied requests pushed the refill back")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 10, &now)

	rl.allow("1.2.3.4")
	now = now.Add(2 * time.Minute)
	rl.allow("5.6.7.8")
	now = now.Add(2 * time.Minute)

	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["1.2.3.4"]; ok {
		t.Error("idle visitor kept")
	}
	if _, ok := rl.visitors["5.6.7.8"]; !ok {
		t.Error("recent visitor evicted")
	}
}

func TestRateLimiter_CloseTwice(t *testing.T) {
	rl := newRateLimiter(1)
	rl.close()
	rl.close()
}
