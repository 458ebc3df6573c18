package engine

import (
	"duel-arena/internal/physics"
	"duel-arena/internal/stats"
	"duel-arena/internal/weapons"
)

// CombatantState is the immutable view of a Combatant inside a snapshot.
type CombatantState struct {
	ID                string           `json:"id" msgpack:"id"`
	IsCPU             bool             `json:"isCpu" msgpack:"isCpu"`
	WeaponID          string           `json:"weaponId" msgpack:"weaponId"`
	Pos               physics.Vec2     `json:"pos" msgpack:"pos"`
	Vel               physics.Vec2     `json:"vel" msgpack:"vel"`
	Facing            float64          `json:"facing" msgpack:"facing"`
	Radius            float64          `json:"radius" msgpack:"radius"`
	HP                int              `json:"hp" msgpack:"hp"`
	Stamina           float64          `json:"stamina" msgpack:"stamina"`
	Invulnerable      bool             `json:"invulnerable" msgpack:"invulnerable"`
	InvulnerableUntil float64          `json:"invulnerableUntil" msgpack:"invulnerableUntil"`
	Action            *ActionState     `json:"action,omitempty" msgpack:"action,omitempty"`
	AttackReadyAt     float64          `json:"attackReadyAt" msgpack:"attackReadyAt"`
	DodgeReadyAt      float64          `json:"dodgeReadyAt" msgpack:"dodgeReadyAt"`
	LastSeq           uint64           `json:"lastSeq" msgpack:"lastSeq"`
	Attributes        stats.Attributes `json:"attributes" msgpack:"attributes"`
	Stats             stats.Derived    `json:"stats" msgpack:"stats"`
}

// CombatState is a snapshot of one engine at one instant. It is rebuilt for
// every broadcast and never mutated by consumers.
type CombatState struct {
	MatchID     string               `json:"matchId" msgpack:"matchId"`
	Tick        uint64               `json:"tick" msgpack:"tick"`
	Time        float64              `json:"time" msgpack:"time"`
	Arena       physics.Rect         `json:"arena" msgpack:"arena"`
	Combatants  []CombatantState     `json:"combatants" msgpack:"combatants"`
	Projectiles []weapons.Projectile `json:"projectiles" msgpack:"projectiles"`
	Over        bool                 `json:"over" msgpack:"over"`
	Winner      string               `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Draw        bool                 `json:"draw" msgpack:"draw"`
	Reason      EndReason            `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Events      []Event              `json:"events" msgpack:"events"`
}

// Combatant returns the state for id.
func (s CombatState) Combatant(id string) (CombatantState, bool) {
	for _, c := range s.Combatants {
		if c.ID == id {
			return c, true
		}
	}
	return CombatantState{}, false
}

// Opponent returns the state of the combatant that is not id.
func (s CombatState) Opponent(id string) (CombatantState, bool) {
	for _, c := range s.Combatants {
		if c.ID != id {
			return c, true
		}
	}
	return CombatantState{}, false
}

func (c *Combatant) snapshot() CombatantState {
	cs := CombatantState{
		ID:                c.ID,
		IsCPU:             c.IsCPU,
		WeaponID:          c.WeaponID,
		Pos:               c.Pos,
		Vel:               c.Vel,
		Facing:            c.Facing,
		Radius:            c.Radius,
		HP:                c.HP,
		Stamina:           c.Stamina,
		Invulnerable:      c.Invulnerable,
		InvulnerableUntil: c.InvulnerableUntil,
		AttackReadyAt:     c.AttackReadyAt,
		DodgeReadyAt:      c.DodgeReadyAt,
		LastSeq:           c.LastSeq,
		Attributes:        c.Attributes,
		Stats:             c.Stats,
	}
	if c.Action != nil {
		a := *c.Action
		cs.Action = &a
	}
	return cs
}
