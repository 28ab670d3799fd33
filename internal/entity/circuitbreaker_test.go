package entity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
)

func decodeBreakerState(t *testing.T, state []byte) domain.CircuitBreakerState {
	t.Helper()
	var s domain.CircuitBreakerState
	if err := json.Unmarshal(state, &s); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return s
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := &CircuitBreaker{}

	state, result, err := cb.Apply(OpGetStatus, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != true {
		t.Error("fresh breaker should report healthy")
	}

	s := decodeBreakerState(t, state)
	if s.Strikes != domain.InitialStrikes {
		t.Errorf("strikes = %d, want %d", s.Strikes, domain.InitialStrikes)
	}
	if s.IsOpen {
		t.Error("fresh breaker should be closed")
	}
}

func TestCircuitBreaker_OpensAfterThreeTrips(t *testing.T) {
	cb := &CircuitBreaker{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	var result any
	var err error

	// Two trips: still closed
	for i := 0; i < 2; i++ {
		state, result, err = cb.Apply(OpTrip, state, TripInput{ErrorMessage: "fetch failed", Now: now})
		if err != nil {
			t.Fatalf("trip %d: %v", i, err)
		}
		if result != true {
			t.Errorf("breaker should stay closed after %d trips", i+1)
		}
	}

	// Third trip opens
	state, result, err = cb.Apply(OpTrip, state, TripInput{ErrorMessage: "fetch failed again", Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != false {
		t.Error("breaker should open after third trip")
	}

	s := decodeBreakerState(t, state)
	if !s.IsOpen {
		t.Error("breaker should be open")
	}
	if s.Strikes != 0 {
		t.Errorf("strikes = %d, want 0", s.Strikes)
	}
	if s.ErrorMessage != "fetch failed again" {
		t.Errorf("error message = %q, want the tripping error", s.ErrorMessage)
	}
	if s.OpenedAt == nil || !s.OpenedAt.Equal(now) {
		t.Errorf("opened at = %v, want %v", s.OpenedAt, now)
	}
}

func TestCircuitBreaker_StaysOpenWithoutReset(t *testing.T) {
	cb := &CircuitBreaker{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	for i := 0; i < domain.InitialStrikes; i++ {
		state, _, _ = cb.Apply(OpTrip, state, TripInput{ErrorMessage: "boom", Now: now})
	}

	// Open breaker ignores further trips and never closes by itself
	state, result, err := cb.Apply(OpTrip, state, TripInput{ErrorMessage: "later", Now: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != false {
		t.Error("open breaker must stay open")
	}

	s := decodeBreakerState(t, state)
	if s.ErrorMessage != "boom" {
		t.Errorf("error message = %q, trip on open breaker must not overwrite it", s.ErrorMessage)
	}

	_, result, _ = cb.Apply(OpGetStatus, state, nil)
	if result != false {
		t.Error("status of open breaker should be unhealthy")
	}
}

func TestCircuitBreaker_ResetRestoresStrikes(t *testing.T) {
	cb := &CircuitBreaker{}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state []byte
	for i := 0; i < domain.InitialStrikes; i++ {
		state, _, _ = cb.Apply(OpTrip, state, TripInput{ErrorMessage: "boom", Now: now})
	}

	state, result, err := cb.Apply(OpReset, state, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != true {
		t.Error("reset breaker should report healthy")
	}

	s := decodeBreakerState(t, state)
	if s.IsOpen {
		t.Error("reset breaker should be closed")
	}
	if s.Strikes != domain.InitialStrikes {
		t.Errorf("strikes = %d, want %d after reset", s.Strikes, domain.InitialStrikes)
	}
	if s.ErrorMessage != "" || s.OpenedAt != nil {
		t.Error("reset should clear error and opened timestamp")
	}
}

func TestCircuitBreaker_PartialStrikesSurviveRestart(t *testing.T) {
	host := NewHost(HostConfig{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// One strike consumed through the host
	if _, err := host.Call(ctx, EntityCircuitBreaker, "judge", OpTrip,
		TripInput{ErrorMessage: "malformed output", Now: now}); err != nil {
		t.Fatalf("trip failed: %v", err)
	}

	// A second host over the same store sees the consumed strike
	store := host.store
	host2 := NewHost(HostConfig{Store: store})
	raw, err := store.Get(ctx, EntityCircuitBreaker, "judge")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	s := decodeBreakerState(t, raw)
	if s.Strikes != domain.InitialStrikes-1 {
		t.Errorf("strikes = %d, want %d", s.Strikes, domain.InitialStrikes-1)
	}

	// Two more trips through the new host open the breaker
	host2.Call(ctx, EntityCircuitBreaker, "judge", OpTrip, TripInput{ErrorMessage: "x", Now: now})
	result, err := host2.Call(ctx, EntityCircuitBreaker, "judge", OpTrip, TripInput{ErrorMessage: "y", Now: now})
	if err != nil {
		t.Fatalf("trip failed: %v", err)
	}
	if result != false {
		t.Error("breaker should open on the third cumulative trip")
	}
}

func TestHost_UnknownEntity(t *testing.T) {
	host := NewHost(HostConfig{})

	_, err := host.Call(context.Background(), "thermostat", "x", "SET", nil)
	if err == nil {
		t.Fatal("expected error for unknown entity")
	}
}
