package engine

import (
	"fmt"

	"duel-arena/internal/physics"
	"duel-arena/internal/stats"
)

// ActionKind is the closed set of things a combatant can do.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionAttack
	ActionDodge
)

var actionKindNames = [...]string{"move", "attack", "dodge"}

func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return fmt.Sprintf("action(%d)", k)
}

func (k ActionKind) MarshalText() ([]byte, error) {
	if int(k) >= len(actionKindNames) {
		return nil, fmt.Errorf("unknown action kind %d", k)
	}
	return []byte(actionKindNames[k]), nil
}

func (k *ActionKind) UnmarshalText(text []byte) error {
	for i, name := range actionKindNames {
		if name == string(text) {
			*k = ActionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", string(text))
}

// Action is one requested action. Move uses Direction; Attack may name a
// weapon to swap to (empty means the equipped one); Dodge uses Direction
// and falls back to the move input, then to facing.
type Action struct {
	Kind      ActionKind   `json:"kind" msgpack:"kind"`
	Direction physics.Vec2 `json:"direction,omitempty" msgpack:"direction,omitempty"`
	WeaponID  string       `json:"weaponId,omitempty" msgpack:"weaponId,omitempty"`
}

// Attack builds an attack action.
func Attack(weaponID string) Action {
	return Action{Kind: ActionAttack, WeaponID: weaponID}
}

// Dodge builds a roll in direction dir.
func Dodge(dir physics.Vec2) Action {
	return Action{Kind: ActionDodge, Direction: dir}
}

// Input is the latest control state for one actor. Move and Facing persist
// between ticks; Actions are consumed by the tick that reads them.
type Input struct {
	Move    physics.Vec2 `json:"move" msgpack:"move"`
	Facing  float64      `json:"facing" msgpack:"facing"`
	Actions []Action     `json:"actions,omitempty" msgpack:"actions,omitempty"`
	Seq     uint64       `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// ActionPhase is where an in-progress action sits in its timeline.
type ActionPhase uint8

const (
	PhaseWindup ActionPhase = iota
	PhaseActive
	PhaseRecovery
)

var phaseNames = [...]string{"windup", "active", "recovery"}

func (p ActionPhase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

func (p ActionPhase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown phase %d", p)
	}
	return []byte(phaseNames[p]), nil
}

func (p *ActionPhase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = ActionPhase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// ActionState is an accepted Attack or Dodge moving through its phases.
// Times are simulation seconds.
type ActionState struct {
	Kind           ActionKind   `json:"kind" msgpack:"kind"`
	Phase          ActionPhase  `json:"phase" msgpack:"phase"`
	WeaponID       string       `json:"weaponId,omitempty" msgpack:"weaponId,omitempty"`
	Direction      physics.Vec2 `json:"direction" msgpack:"direction"`
	StartedAt      float64      `json:"startedAt" msgpack:"startedAt"`
	PhaseEndsAt    float64      `json:"phaseEndsAt" msgpack:"phaseEndsAt"`
	CooldownEndsAt float64      `json:"cooldownEndsAt" msgpack:"cooldownEndsAt"`
	// HitResolved guards the active frame so an attack lands at most once.
	HitResolved bool `json:"hitResolved" msgpack:"hitResolved"`
}

// Locked reports whether the combatant is committed: facing and walk input
// are ignored. Attack recovery allows both; a dodge locks until it clears.
func (a *ActionState) Locked() bool {
	if a == nil {
		return false
	}
	return a.Kind == ActionDodge || a.Phase != PhaseRecovery
}

// Combatant is one side of the duel. Owned by the Engine and mutated only
// inside Step.
type Combatant struct {
	ID       string
	IsCPU    bool
	WeaponID string

	Pos    physics.Vec2
	Vel    physics.Vec2
	Facing float64
	Radius float64

	HP      int
	Stamina float64

	Invulnerable      bool
	InvulnerableUntil float64

	Action        *ActionState
	AttackReadyAt float64
	DodgeReadyAt  float64
	LastSeq       uint64 // highest input sequence applied

	Attributes stats.Attributes
	Stats      stats.Derived // refreshed at the start of every tick
}

// Alive reports whether HP is above zero.
func (c *Combatant) Alive() bool {
	return c.HP > 0
}

// Setup configures one participant at match start.
type Setup struct {
	ID         string
	IsCPU      bool
	WeaponID   string
	Attributes stats.Attributes
}

// EventType classifies what happened in a tick.
type EventType uint8

const (
	EventAttack     EventType = iota // attack accepted (windup began)
	EventHit                         // damage applied
	EventEvade                       // hit absorbed by i-frames
	EventDodge                       // roll started
	EventProjectile                  // projectile spawned
	EventDeath                       // HP reached zero
)

var eventNames = [...]string{"attack", "hit", "evade", "dodge", "projectile", "death"}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	for i, name := range eventNames {
		if name == string(text) {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", string(text))
}

// Event is one combat occurrence, appended to the outgoing state.
type Event struct {
	Type         EventType `json:"type" msgpack:"type"`
	Tick         uint64    `json:"tick" msgpack:"tick"`
	ActorID      string    `json:"actorId" msgpack:"actorId"`
	TargetID     string    `json:"targetId,omitempty" msgpack:"targetId,omitempty"`
	WeaponID     string    `json:"weaponId,omitempty" msgpack:"weaponId,omitempty"`
	ProjectileID string    `json:"projectileId,omitempty" msgpack:"projectileId,omitempty"`
	Damage       int       `json:"damage,omitempty" msgpack:"damage,omitempty"`
	TargetHP     int       `json:"targetHp,omitempty" msgpack:"targetHp,omitempty"`
}

// EndReason is why a duel finished.
type EndReason string

const (
	ReasonNone     EndReason = ""
	ReasonKO       EndReason = "ko"
	ReasonDoubleKO EndReason = "double_ko"
	ReasonTimeout  EndReason = "timeout"
	ReasonForfeit  EndReason = "forfeit"
	// ReasonAbandoned ends a match neither side joined. It is a draw that
	// ranks nobody.
	ReasonAbandoned EndReason = "abandoned"
)
