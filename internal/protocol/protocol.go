// Package protocol defines the event contract between connections and the
// match server: event names, payloads and the JSON/msgpack codecs.
package protocol

import (
	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
)

// Event names on the wire.
const (
	// Inbound
	EventJoin  = "match:join"
	EventInput = "match:input"
	EventLeave = "match:leave"

	// Outbound
	EventJoined   = "match:joined"
	EventStatus   = "match:status"
	EventState    = "match:state"
	EventComplete = "match:complete"
	EventError    = "match:error"
)

// JoinPayload asks to join (or rejoin) a match.
type JoinPayload struct {
	MatchID string `json:"matchId" msgpack:"matchId"`
}

// LeavePayload leaves a match. Leaving an active match forfeits it.
type LeavePayload struct {
	MatchID string `json:"matchId" msgpack:"matchId"`
}

// ActionPayload is one requested action inside an input.
type ActionPayload struct {
	Type     string  `json:"type" msgpack:"type"` // "attack" or "dodge"
	WeaponID string  `json:"weaponId,omitempty" msgpack:"weaponId,omitempty"`
	DirX     float64 `json:"dirX,omitempty" msgpack:"dirX,omitempty"`
	DirY     float64 `json:"dirY,omitempty" msgpack:"dirY,omitempty"`
}

// InputState is the control state a client submits.
type InputState struct {
	MoveX   float64         `json:"moveX" msgpack:"moveX"`
	MoveY   float64         `json:"moveY" msgpack:"moveY"`
	Facing  float64         `json:"facing" msgpack:"facing"`
	Actions []ActionPayload `json:"actions,omitempty" msgpack:"actions,omitempty"`
	Seq     uint64          `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// InputPayload carries one input for an actor in a match.
type InputPayload struct {
	MatchID string     `json:"matchId" msgpack:"matchId"`
	ActorID string     `json:"actorId" msgpack:"actorId"`
	Input   InputState `json:"input" msgpack:"input"`
}

// ToEngine converts the wire input to engine input. Unknown action types
// are kept with an out-of-range kind so validation rejects them.
func (in InputState) ToEngine() engine.Input {
	out := engine.Input{
		Move:   physics.V(in.MoveX, in.MoveY),
		Facing: in.Facing,
		Seq:    in.Seq,
	}
	if len(in.Actions) > 0 {
		out.Actions = make([]engine.Action, 0, len(in.Actions))
	}
	for _, a := range in.Actions {
		var kind engine.ActionKind
		if err := kind.UnmarshalText([]byte(a.Type)); err != nil {
			kind = engine.ActionKind(255)
		}
		out.Actions = append(out.Actions, engine.Action{
			Kind:      kind,
			WeaponID:  a.WeaponID,
			Direction: physics.V(a.DirX, a.DirY),
		})
	}
	return out
}

// JoinedPayload confirms a join. Resumed is set when a reconnect restored
// a stored snapshot.
type JoinedPayload struct {
	MatchID   string `json:"matchId" msgpack:"matchId"`
	ActorID   string `json:"actorId,omitempty" msgpack:"actorId,omitempty"`
	Spectator bool   `json:"spectator" msgpack:"spectator"`
	Status    string `json:"status" msgpack:"status"`
	Resumed   bool   `json:"resumed" msgpack:"resumed"`
}

// StatusPayload reports lifecycle changes and the countdown.
type StatusPayload struct {
	MatchID            string  `json:"matchId" msgpack:"matchId"`
	Status             string  `json:"status" msgpack:"status"`
	CountdownRemaining float64 `json:"countdownRemaining" msgpack:"countdownRemaining"`
}

// StatePayload is a broadcast snapshot.
type StatePayload = engine.CombatState

// CompletePayload is sent once when a match ends.
type CompletePayload struct {
	MatchID    string             `json:"matchId" msgpack:"matchId"`
	WinnerID   string             `json:"winnerId" msgpack:"winnerId"`
	Draw       bool               `json:"draw" msgpack:"draw"`
	Reason     string             `json:"reason" msgpack:"reason"`
	FinalState engine.CombatState `json:"finalState" msgpack:"finalState"`
}

// ErrorPayload reports a rejected request to the originating connection.
type ErrorPayload struct {
	MatchID string `json:"matchId,omitempty" msgpack:"matchId,omitempty"`
	Reason  string `json:"reason" msgpack:"reason"`
	Detail  string `json:"detail,omitempty" msgpack:"detail,omitempty"`
}
