package safety

import (
	"math"
	"testing"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/weapons"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// TestRateLimiterWindow admits exactly capacity inputs per window
func TestRateLimiterWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(LimiterConfig{Capacity: 120, Window: time.Second}, clock.Now)

	for i := 0; i < 120; i++ {
		if !rl.Allow("conn1") {
			t.Fatalf("Input %d rejected, expected all 120 admitted", i+1)
		}
		clock.Advance(time.Millisecond)
	}
	if rl.Allow("conn1") {
		t.Error("Expected 121st input in the same window to be rejected")
	}
	if !rl.Allow("conn2") {
		t.Error("Windows must be per connection")
	}

	clock.Advance(time.Second)
	if !rl.Allow("conn1") {
		t.Error("Expected admission after the window expired")
	}

	stats := rl.Stats()
	if stats["rejected"].(uint64) != 1 {
		t.Errorf("Expected 1 rejection, got %v", stats["rejected"])
	}
}

// TestRateLimiterSweep drops idle windows only
func TestRateLimiterSweep(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(LimiterConfig{Capacity: 10, Window: time.Second, StaleAge: time.Minute}, clock.Now)

	rl.Allow("old")
	clock.Advance(2 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.Sweep(); removed != 1 {
		t.Errorf("Expected 1 stale window removed, got %d", removed)
	}
	if tracked := rl.Stats()["tracked"].(int); tracked != 1 {
		t.Errorf("Expected 1 tracked window, got %d", tracked)
	}
}

// TestDisconnectSnapshotConsumedOnce retrieves within grace exactly once
func TestDisconnectSnapshotConsumedOnce(t *testing.T) {
	clock := newFakeClock()
	store := NewDisconnectStore(30*time.Second, clock.Now)
	state := engine.CombatState{MatchID: "m1", Tick: 42}

	store.Save("m1", "u1", state)
	clock.Advance(29 * time.Second)

	if !store.CanReconnect("m1", "u1") {
		t.Error("Expected reconnect allowed at 29s")
	}
	got, ok := store.GetSnapshot("m1", "u1")
	if !ok || got.Tick != 42 {
		t.Errorf("Expected snapshot at tick 42, got %+v ok=%v", got, ok)
	}
	if _, ok := store.GetSnapshot("m1", "u1"); ok {
		t.Error("Expected second GetSnapshot to return nothing")
	}
}

// TestDisconnectSnapshotExpires refuses after the grace window
func TestDisconnectSnapshotExpires(t *testing.T) {
	clock := newFakeClock()
	store := NewDisconnectStore(30*time.Second, clock.Now)

	store.Save("m1", "u1", engine.CombatState{MatchID: "m1"})
	store.Save("m1", "u2", engine.CombatState{MatchID: "m1"})
	clock.Advance(31 * time.Second)

	if store.CanReconnect("m1", "u1") {
		t.Error("Expected reconnect refused after grace")
	}
	if _, ok := store.GetSnapshot("m1", "u1"); ok {
		t.Error("Expected no snapshot after grace")
	}
	expired := store.Sweep()
	if len(expired) != 1 || expired[0] != (SnapshotKey{"m1", "u2"}) {
		t.Errorf("Expected u2 swept, got %+v", expired)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
}

// TestValidatorReasons maps each illegal input to its reason
func TestValidatorReasons(t *testing.T) {
	v := NewValidator(weapons.Default())
	idle := engine.CombatantState{ID: "p1", WeaponID: "sword", Stamina: 100}
	busy := idle
	busy.Action = &engine.ActionState{Kind: engine.ActionAttack, Phase: engine.PhaseWindup}
	tired := idle
	tired.Stamina = 10
	cooling := idle
	cooling.AttackReadyAt = 5
	cooling.DodgeReadyAt = 5

	tests := []struct {
		name string
		in   engine.Input
		self engine.CombatantState
		want Reason
	}{
		{"valid move", engine.Input{Move: physics.V(0.6, 0.8)}, idle, ""},
		{"unit move within tolerance", engine.Input{Move: physics.V(1.0005, 0)}, idle, ""},
		{"speed hack", engine.Input{Move: physics.V(1, 1)}, idle, ReasonInvalidDirection},
		{"nan move", engine.Input{Move: physics.V(math.NaN(), 0)}, idle, ReasonInvalidDirection},
		{"inf facing", engine.Input{Facing: math.Inf(1)}, idle, ReasonInvalidDirection},
		{"valid attack", engine.Input{Actions: []engine.Action{engine.Attack("")}}, idle, ""},
		{"unknown weapon", engine.Input{Actions: []engine.Action{engine.Attack("laser")}}, idle, ReasonUnknownWeapon},
		{"own weapon named", engine.Input{Actions: []engine.Action{engine.Attack("sword")}}, idle, ""},
		{"other loadout weapon", engine.Input{Actions: []engine.Action{engine.Attack("hammer")}}, idle, ReasonWeaponNotEquipped},
		{"attack busy", engine.Input{Actions: []engine.Action{engine.Attack("")}}, busy, ReasonActionInProgress},
		{"attack tired", engine.Input{Actions: []engine.Action{engine.Attack("")}}, tired, ReasonInsufficientStamina},
		{"attack cooling", engine.Input{Actions: []engine.Action{engine.Attack("")}}, cooling, ReasonOnCooldown},
		{"dodge cooling", engine.Input{Actions: []engine.Action{engine.Dodge(physics.V(1, 0))}}, cooling, ReasonOnCooldown},
		{"dodge tired", engine.Input{Actions: []engine.Action{engine.Dodge(physics.V(1, 0))}}, tired, ReasonInsufficientStamina},
		{"dodge hack", engine.Input{Actions: []engine.Action{engine.Dodge(physics.V(3, 0))}}, idle, ReasonInvalidDirection},
		{"bad kind", engine.Input{Actions: []engine.Action{{Kind: 9}}}, idle, ReasonInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in, tt.self, 1)
			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected valid input, got %v", err)
				}
				return
			}
			reason, ok := ReasonOf(err)
			if !ok || reason != tt.want {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}
}
