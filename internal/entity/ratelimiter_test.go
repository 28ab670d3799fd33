package entity

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
)

func acquireInput(rpm int, period time.Duration, now time.Time) TryAcquireInput {
	return TryAcquireInput{
		RateLimitRPM:    rpm,
		RateLimitPeriod: period,
		Now:             now,
	}
}

func decodeLimiterState(t *testing.T, state []byte) domain.RateLimiterState {
	t.Helper()
	var s domain.RateLimiterState
	if err := json.Unmarshal(state, &s); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return s
}

func TestRateLimiter_FirstAcquireSucceeds(t *testing.T) {
	rl := &RateLimiter{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// First call: bucket starts full, token granted
	state, result, err := rl.Apply(OpTryAcquire, nil, acquireInput(3, time.Minute, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != true {
		t.Error("first acquire should succeed")
	}

	s := decodeLimiterState(t, state)
	if s.Tokens != 2 {
		t.Errorf("tokens = %d, want 2", s.Tokens)
	}
	if s.LastRefill == nil || !s.LastRefill.Equal(now) {
		t.Errorf("last refill = %v, want %v", s.LastRefill, now)
	}
}

func TestRateLimiter_ExhaustionDenies(t *testing.T) {
	rl := &RateLimiter{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	var result any
	var err error

	// Drain all tokens
	for i := 0; i < 3; i++ {
		state, result, err = rl.Apply(OpTryAcquire, state, acquireInput(3, time.Minute, now))
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if result != true {
			t.Fatalf("acquire %d should succeed", i)
		}
	}

	// Fourth within the same window is denied
	state, result, err = rl.Apply(OpTryAcquire, state, acquireInput(3, time.Minute, now.Add(time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != false {
		t.Error("acquire beyond capacity should be denied")
	}

	s := decodeLimiterState(t, state)
	if s.Tokens != 0 {
		t.Errorf("tokens = %d, want 0", s.Tokens)
	}
}

func TestRateLimiter_RefillAfterPeriod(t *testing.T) {
	rl := &RateLimiter{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	for i := 0; i < 2; i++ {
		state, _, _ = rl.Apply(OpTryAcquire, state, acquireInput(2, time.Minute, now))
	}

	// Bucket is empty; a full period later it refills completely
	later := now.Add(time.Minute)
	state, result, err := rl.Apply(OpTryAcquire, state, acquireInput(2, time.Minute, later))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != true {
		t.Error("acquire after refill should succeed")
	}

	s := decodeLimiterState(t, state)
	if s.Tokens != 1 {
		t.Errorf("tokens = %d, want 1 after full refill and one grant", s.Tokens)
	}
	if s.LastRefill == nil || !s.LastRefill.Equal(later) {
		t.Errorf("refill anchor should move to %v, got %v", later, s.LastRefill)
	}
}

func TestRateLimiter_NoPartialRefill(t *testing.T) {
	rl := &RateLimiter{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	for i := 0; i < 2; i++ {
		state, _, _ = rl.Apply(OpTryAcquire, state, acquireInput(2, time.Minute, now))
	}

	// Half a period is not enough: no tokens appear
	_, result, err := rl.Apply(OpTryAcquire, state, acquireInput(2, time.Minute, now.Add(30*time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != false {
		t.Error("bucket must stay empty until a full period elapses")
	}
}

func TestRateLimiter_TokensNeverExceedCapacity(t *testing.T) {
	rl := &RateLimiter{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Refill after several idle periods must not accumulate tokens
	state, _, _ := rl.Apply(OpTryAcquire, nil, acquireInput(3, time.Minute, now))
	state, _, _ = rl.Apply(OpTryAcquire, state, acquireInput(3, time.Minute, now.Add(10*time.Minute)))

	s := decodeLimiterState(t, state)
	if s.Tokens > 3 {
		t.Errorf("tokens = %d, must never exceed capacity 3", s.Tokens)
	}
	if s.Tokens != 2 {
		t.Errorf("tokens = %d, want 2 (full refill minus one grant)", s.Tokens)
	}
}

func TestRateLimiter_UnknownOperation(t *testing.T) {
	rl := &RateLimiter{}

	_, _, err := rl.Apply("DRAIN", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestHost_SerializesPerKey(t *testing.T) {
	host := NewHost(HostConfig{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	const workers = 20
	const capacity = 5

	// Concurrent TRY_ACQUIRE against one key: exactly capacity grants
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := host.Call(ctx, EntityRateLimiter, "summarizer", OpTryAcquire,
				acquireInput(capacity, time.Minute, now))
			if err != nil {
				t.Errorf("call failed: %v", err)
				return
			}
			results <- result.(bool)
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	if granted != capacity {
		t.Errorf("granted = %d, want exactly %d", granted, capacity)
	}
}
