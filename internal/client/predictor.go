// Package client holds the consumer side of the snapshot contract: local
// movement prediction for the controlled combatant and interpolation of
// remote combatants between broadcasts. Nothing here feeds back into the
// authoritative simulation.
package client

import (
	"fmt"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
)

// maxPending bounds unacknowledged inputs kept for replay.
const maxPending = 120

// Predictor moves the local combatant ahead of server confirmation and
// reconciles against each snapshot using the last input sequence the server
// applied.
type Predictor struct {
	selfID string
	dt     float64
	bounds physics.Rect
	speed  float64

	pos     physics.Vec2
	seq     uint64
	pending []engine.Input
	// locked while the server reports a committed action; prediction pauses
	locked bool
}

// NewPredictor starts predicting selfID from an initial snapshot.
func NewPredictor(selfID string, state engine.CombatState, tickHz int) (*Predictor, error) {
	self, ok := state.Combatant(selfID)
	if !ok {
		return nil, fmt.Errorf("combatant %s not in snapshot", selfID)
	}
	if tickHz <= 0 {
		tickHz = engine.DefaultTickHz
	}
	p := &Predictor{
		selfID: selfID,
		dt:     1 / float64(tickHz),
		seq:    self.LastSeq,
	}
	p.adopt(state.Arena, self)
	return p, nil
}

// Position returns the predicted position.
func (p *Predictor) Position() physics.Vec2 {
	return p.pos
}

// Pending returns how many inputs await acknowledgement.
func (p *Predictor) Pending() int {
	return len(p.pending)
}

// Apply stamps in with the next sequence number, predicts one tick of
// movement and returns the stamped input to send.
func (p *Predictor) Apply(in engine.Input) engine.Input {
	p.seq++
	in.Seq = p.seq
	p.pending = append(p.pending, in)
	if len(p.pending) > maxPending {
		p.pending = p.pending[len(p.pending)-maxPending:]
	}
	if !p.locked {
		p.pos = p.step(p.pos, in.Move)
	}
	return in
}

// Reconcile snaps to the authoritative position, drops acknowledged inputs
// and replays the rest. It returns how far the prediction had drifted.
func (p *Predictor) Reconcile(state engine.CombatState) float64 {
	self, ok := state.Combatant(p.selfID)
	if !ok {
		return 0
	}
	before := p.pos

	k := 0
	for k < len(p.pending) && p.pending[k].Seq <= self.LastSeq {
		k++
	}
	p.pending = append(p.pending[:0], p.pending[k:]...)

	p.adopt(state.Arena, self)
	if !p.locked {
		for _, in := range p.pending {
			p.pos = p.step(p.pos, in.Move)
		}
	}
	return before.Dist(p.pos)
}

func (p *Predictor) adopt(arena physics.Rect, self engine.CombatantState) {
	p.pos = self.Pos
	p.speed = self.Stats.MoveSpeed
	p.bounds = arena.Inset(self.Radius)
	p.locked = self.Action.Locked()
}

func (p *Predictor) step(pos, move physics.Vec2) physics.Vec2 {
	vel := physics.CalculateVelocity(move, p.speed)
	return physics.ClampToArena(physics.Integrate(pos, vel, p.dt), p.bounds)
}
