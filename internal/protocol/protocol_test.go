package protocol

import (
	"errors"
	"testing"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
)

// TestCodecsCarryInput checks both wire formats deliver the same input
func TestCodecsCarryInput(t *testing.T) {
	sent := InputPayload{
		MatchID: "m1",
		ActorID: "p1",
		Input: InputState{
			MoveX: 0.5, MoveY: -0.5, Facing: 1.25, Seq: 7,
			Actions: []ActionPayload{{Type: "dodge", DirX: 1}},
		},
	}

	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(EventInput, sent)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			msg, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if msg.Type != EventInput {
				t.Errorf("Expected type %s, got %s", EventInput, msg.Type)
			}
			var got InputPayload
			if err := msg.Bind(&got); err != nil {
				t.Fatalf("Bind failed: %v", err)
			}
			if got.MatchID != "m1" || got.Input.Seq != 7 || len(got.Input.Actions) != 1 {
				t.Errorf("Payload mangled: %+v", got)
			}
		})
	}
}

// TestCodecsCarrySnapshot encodes a full engine snapshot with enum fields
func TestCodecsCarrySnapshot(t *testing.T) {
	state := engine.CombatState{
		MatchID: "m1",
		Tick:    12,
		Combatants: []engine.CombatantState{{
			ID:     "p1",
			Pos:    physics.V(10, 20),
			HP:     90,
			Action: &engine.ActionState{Kind: engine.ActionDodge, Phase: engine.PhaseRecovery},
		}},
		Events: []engine.Event{{Type: engine.EventHit, ActorID: "p2", TargetID: "p1", Damage: 10}},
	}
	complete := CompletePayload{MatchID: "m1", WinnerID: "p2", Reason: "ko", FinalState: state}

	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(EventComplete, complete)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			msg, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			var got CompletePayload
			if err := msg.Bind(&got); err != nil {
				t.Fatalf("Bind failed: %v", err)
			}
			fs := got.FinalState
			if len(fs.Combatants) != 1 || fs.Combatants[0].Action == nil {
				t.Fatalf("Expected combatant with action, got %+v", fs.Combatants)
			}
			if fs.Combatants[0].Action.Phase != engine.PhaseRecovery {
				t.Errorf("Expected recovery phase, got %v", fs.Combatants[0].Action.Phase)
			}
			if len(fs.Events) != 1 || fs.Events[0].Type != engine.EventHit {
				t.Errorf("Expected hit event, got %+v", fs.Events)
			}
		})
	}
}

// TestDecodeRejectsMissingType refuses envelopes without an event name
func TestDecodeRejectsMissingType(t *testing.T) {
	if _, err := JSON.Decode([]byte(`{"data":{}}`)); !errors.Is(err, ErrEmptyType) {
		t.Errorf("Expected ErrEmptyType, got %v", err)
	}
	if _, err := JSON.Decode([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

// TestInputToEngine maps wire actions to engine actions
func TestInputToEngine(t *testing.T) {
	in := InputState{
		MoveX: 1, Facing: 0.5,
		Actions: []ActionPayload{
			{Type: "attack", WeaponID: "spear"},
			{Type: "dodge", DirX: 0, DirY: -1},
			{Type: "teleport"},
		},
	}
	out := in.ToEngine()
	if out.Move != physics.V(1, 0) || out.Facing != 0.5 {
		t.Errorf("Unexpected move/facing: %+v", out)
	}
	if len(out.Actions) != 3 {
		t.Fatalf("Expected 3 actions, got %d", len(out.Actions))
	}
	if out.Actions[0].Kind != engine.ActionAttack || out.Actions[0].WeaponID != "spear" {
		t.Errorf("Expected spear attack, got %+v", out.Actions[0])
	}
	if out.Actions[1].Kind != engine.ActionDodge || out.Actions[1].Direction != physics.V(0, -1) {
		t.Errorf("Expected dodge up, got %+v", out.Actions[1])
	}
	if out.Actions[2].Kind <= engine.ActionDodge {
		t.Errorf("Expected unknown kind to stay invalid, got %v", out.Actions[2].Kind)
	}
}

// TestCodecByName defaults to JSON
func TestCodecByName(t *testing.T) {
	if CodecByName("msgpack") != Msgpack {
		t.Error("Expected msgpack codec")
	}
	if CodecByName("") != JSON || CodecByName("xml") != JSON {
		t.Error("Expected JSON fallback")
	}
}
