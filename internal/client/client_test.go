package client

import (
	"math"
	"testing"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/weapons"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.DefaultConfig(), weapons.Default(),
		engine.Setup{ID: "a", WeaponID: "sword"},
		engine.Setup{ID: "b", WeaponID: "sword"})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return eng
}

// TestPredictorReplaysUnacknowledged verifies reconciliation lands where local prediction did
func TestPredictorReplaysUnacknowledged(t *testing.T) {
	eng := newEngine(t)
	p, err := NewPredictor("a", eng.State(nil), engine.DefaultTickHz)
	if err != nil {
		t.Fatalf("NewPredictor failed: %v", err)
	}
	start := p.Position()

	var sent []engine.Input
	for k := 0; k < 3; k++ {
		sent = append(sent, p.Apply(engine.Input{Move: physics.V(1, 0)}))
	}
	if sent[2].Seq != 3 {
		t.Errorf("Expected seq 3, got %d", sent[2].Seq)
	}
	predicted := p.Position()
	if predicted.X <= start.X {
		t.Fatalf("Expected prediction to move right, got %v -> %v", start, predicted)
	}

	// Server has applied only the first input
	eng.Step(map[string]engine.Input{"a": sent[0]})
	drift := p.Reconcile(eng.State(nil))

	if drift > 1e-9 {
		t.Errorf("Expected no drift, got %v", drift)
	}
	if p.Pending() != 2 {
		t.Errorf("Expected 2 pending inputs, got %d", p.Pending())
	}
	if math.Abs(p.Position().X-predicted.X) > 1e-9 {
		t.Errorf("Expected %.4f after replay, got %.4f", predicted.X, p.Position().X)
	}
}

// TestPredictorCorrectsDisagreement snaps to the server when it disagrees
func TestPredictorCorrectsDisagreement(t *testing.T) {
	eng := newEngine(t)
	p, err := NewPredictor("a", eng.State(nil), engine.DefaultTickHz)
	if err != nil {
		t.Fatalf("NewPredictor failed: %v", err)
	}
	in := p.Apply(engine.Input{Move: physics.V(1, 0)})
	eng.Step(map[string]engine.Input{"a": in})

	state := eng.State(nil)
	for k := range state.Combatants {
		if state.Combatants[k].ID == "a" {
			state.Combatants[k].Pos.X += 10
		}
	}
	drift := p.Reconcile(state)

	if math.Abs(drift-10) > 1e-9 {
		t.Errorf("Expected drift 10, got %v", drift)
	}
	if p.Pending() != 0 {
		t.Errorf("Expected no pending inputs, got %d", p.Pending())
	}
}

// TestPredictorPausesWhileCommitted does not move during a roll
func TestPredictorPausesWhileCommitted(t *testing.T) {
	eng := newEngine(t)
	state := eng.State(nil)
	for k := range state.Combatants {
		if state.Combatants[k].ID == "a" {
			state.Combatants[k].Action = &engine.ActionState{Kind: engine.ActionDodge, Phase: engine.PhaseActive}
		}
	}

	p, err := NewPredictor("a", state, engine.DefaultTickHz)
	if err != nil {
		t.Fatalf("NewPredictor failed: %v", err)
	}
	start := p.Position()
	p.Apply(engine.Input{Move: physics.V(0, 1)})
	if p.Position() != start {
		t.Errorf("Expected no predicted movement, got %v -> %v", start, p.Position())
	}

	if _, err := NewPredictor("ghost", state, 60); err == nil {
		t.Error("Expected error for unknown combatant")
	}
}

func snapshotAt(t float64, x, facing float64) engine.CombatState {
	return engine.CombatState{
		Time: t,
		Combatants: []engine.CombatantState{
			{ID: "b", Pos: physics.V(x, 100), Facing: facing},
		},
	}
}

// TestInterpolatorBlends verifies position and shortest-arc facing blends
func TestInterpolatorBlends(t *testing.T) {
	it := NewInterpolator(50 * time.Millisecond)
	it.Push(snapshotAt(0, 0, 3.0))
	it.Push(snapshotAt(0.1, 100, -3.0))

	got, ok := it.Sample(0.05)
	if !ok || len(got) != 1 {
		t.Fatalf("Expected one combatant, got %v", got)
	}
	if math.Abs(got[0].Pos.X-50) > 1e-9 {
		t.Errorf("Expected x=50, got %v", got[0].Pos.X)
	}
	if math.Abs(math.Abs(got[0].Facing)-math.Pi) > 1e-6 {
		t.Errorf("Expected facing to wrap through pi, got %v", got[0].Facing)
	}

	cur, _ := it.Current()
	if math.Abs(cur[0].Pos.X-50) > 1e-9 {
		t.Errorf("Expected render time halfway, got x=%v", cur[0].Pos.X)
	}
}

// TestInterpolatorClampsAndOrders checks out-of-order drops and range clamping
func TestInterpolatorClampsAndOrders(t *testing.T) {
	it := NewInterpolator(0)
	if _, ok := it.Sample(1); ok {
		t.Error("Expected no sample from empty buffer")
	}

	it.Push(snapshotAt(0.1, 10, 0))
	if it.Push(snapshotAt(0.05, 99, 0)) {
		t.Error("Expected older snapshot dropped")
	}
	it.Push(snapshotAt(0.2, 20, 0))

	tests := []struct {
		at   float64
		want float64
	}{
		{0, 10},
		{0.15, 15},
		{1, 20},
	}
	for _, tt := range tests {
		got, _ := it.Sample(tt.at)
		if math.Abs(got[0].Pos.X-tt.want) > 1e-9 {
			t.Errorf("Sample(%v): expected x=%v, got %v", tt.at, tt.want, got[0].Pos.X)
		}
	}

	for k := 0; k < 2*maxBuffered; k++ {
		it.Push(snapshotAt(1+float64(k), 0, 0))
	}
	if it.Len() != maxBuffered {
		t.Errorf("Expected buffer capped at %d, got %d", maxBuffered, it.Len())
	}
}
