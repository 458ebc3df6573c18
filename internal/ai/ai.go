// Package ai drives CPU combatants. Decide is a pure function of the
// current CombatState; it keeps no memory between ticks.
package ai

import (
	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/weapons"
)

const (
	// strafePeriod is how many ticks the CPU strafes one way before switching.
	strafePeriod = 30
	// approachBuffer closes to this fraction of weapon range so small
	// separations don't push the target back out of reach.
	approachBuffer = 0.9
	// projectileThreat is how far ahead an incoming projectile triggers a roll.
	projectileThreat = 120.0
)

// Decide returns at most one action for selfID this tick. ok is false when
// the CPU should idle.
//
// Priority: reactive dodge, attack, close distance, strafe, idle.
func Decide(state *engine.CombatState, selfID string, catalog *weapons.Catalog) (engine.Action, bool) {
	if state == nil || state.Over || catalog == nil {
		return engine.Action{}, false
	}
	self, ok := state.Combatant(selfID)
	if !ok {
		return engine.Action{}, false
	}
	opp, ok := state.Opponent(selfID)
	if !ok {
		return engine.Action{}, false
	}
	// Committed to an action: nothing to decide
	if self.Action != nil {
		return engine.Action{}, false
	}

	toTarget := opp.Pos.Sub(self.Pos)
	dist := toTarget.Len()
	dir := toTarget.Normalize()
	if dist < physics.MinSeparation {
		dir = physics.FromAngle(self.Facing)
	}
	now := state.Time

	// Reactive dodge
	dodge := catalog.Dodge()
	canDodge := now >= self.DodgeReadyAt && self.Stamina >= dodge.StaminaCost
	if canDodge && threatened(state, self, opp, catalog) {
		away := dir.Scale(-1)
		// Roll sideways-back so the CPU doesn't pin itself to a wall
		side := physics.V(-dir.Y, dir.X)
		return engine.Dodge(away.Add(side).Normalize()), true
	}

	weapon, ok := catalog.Get(self.WeaponID)
	if !ok {
		return engine.Action{}, false
	}
	inRange := dist-opp.Radius <= weapon.Range
	offCooldown := now >= self.AttackReadyAt

	// Attack
	if inRange && offCooldown && self.Stamina >= weapon.StaminaCost {
		return engine.Attack(weapon.ID), true
	}

	// Close distance
	if !inRange || dist-opp.Radius > weapon.Range*approachBuffer {
		if offCooldown {
			return engine.Action{Kind: engine.ActionMove, Direction: dir}, true
		}
	}

	// Strafe around the target while waiting on cooldown or stamina
	if inRange {
		side := physics.V(-dir.Y, dir.X)
		if (state.Tick/strafePeriod)%2 == 1 {
			side = side.Scale(-1)
		}
		return engine.Action{Kind: engine.ActionMove, Direction: side}, true
	}

	return engine.Action{}, false
}

// threatened reports whether the opponent's attack is live within melee
// reach, or one of its projectiles is about to arrive.
func threatened(state *engine.CombatState, self, opp engine.CombatantState, catalog *weapons.Catalog) bool {
	if a := opp.Action; a != nil && a.Kind == engine.ActionAttack && a.Phase == engine.PhaseActive {
		if w, ok := catalog.Get(a.WeaponID); ok && w.Pattern == weapons.PatternMelee {
			if self.Pos.Dist(opp.Pos)-self.Radius <= w.Range {
				return true
			}
		}
	}

	for _, p := range state.Projectiles {
		if p.OwnerID == self.ID {
			continue
		}
		toSelf := self.Pos.Sub(p.Pos)
		if toSelf.Len() > projectileThreat+self.Radius {
			continue
		}
		// Closing in
		if toSelf.Dot(p.Vel) > 0 {
			return true
		}
	}
	return false
}

// Controller turns decisions into engine input for one CPU combatant.
type Controller struct {
	ID      string
	Catalog *weapons.Catalog
}

// NewController returns a controller for combatant id.
func NewController(id string, catalog *weapons.Catalog) *Controller {
	return &Controller{ID: id, Catalog: catalog}
}

// NextInput builds the CPU's input for the next tick from the latest state.
// The CPU always faces its opponent.
func (c *Controller) NextInput(state *engine.CombatState) engine.Input {
	var in engine.Input
	if state == nil {
		return in
	}
	self, ok := state.Combatant(c.ID)
	if !ok {
		return in
	}
	in.Facing = self.Facing
	if opp, ok := state.Opponent(c.ID); ok {
		if delta := opp.Pos.Sub(self.Pos); delta.Len() >= physics.MinSeparation {
			in.Facing = delta.Angle()
		}
	}

	action, ok := Decide(state, c.ID, c.Catalog)
	if !ok {
		return in
	}
	switch action.Kind {
	case engine.ActionMove:
		in.Move = action.Direction
	default:
		in.Actions = []engine.Action{action}
	}
	return in
}
