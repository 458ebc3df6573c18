// Package engine is the tick-driven duel simulation: two combatants, their
// action state machines, movement, hit resolution and projectiles.
//
// An Engine is not safe for concurrent use. The owning match instance calls
// Step from a single goroutine and hands out CombatState snapshots.
package engine

import (
	"errors"
	"fmt"
	"math"

	"duel-arena/internal/physics"
	"duel-arena/internal/stats"
	"duel-arena/internal/weapons"
)

const (
	DefaultTickHz  = 60
	DefaultRadius  = 20.0
	DefaultArenaW  = 800.0
	DefaultArenaH  = 600.0
	MaxProjectiles = 32 // per engine; oldest spawns win

	// timeEpsilon absorbs accumulated float error when comparing the
	// simulation clock against phase deadlines.
	timeEpsilon = 1e-9
)

var (
	ErrSameCombatant = errors.New("combatants must be distinct")
	ErrUnknownActor  = errors.New("unknown combatant")
)

// Config holds the fixed parameters of one duel.
type Config struct {
	MatchID string
	TickHz  int
	Arena   physics.Rect
	Radius  float64
}

// DefaultConfig returns a 60 Hz engine on an 800x600 arena.
func DefaultConfig() Config {
	return Config{
		TickHz: DefaultTickHz,
		Arena:  physics.NewRect(0, 0, DefaultArenaW, DefaultArenaH),
		Radius: DefaultRadius,
	}
}

// Engine owns both combatants and all projectiles of one duel.
type Engine struct {
	cfg     Config
	dt      float64
	catalog *weapons.Catalog
	dodge   weapons.DodgeSpec
	bounds  physics.Rect // arena inset by combatant radius

	tick uint64
	now  float64

	combatants  [2]*Combatant
	projectiles []*weapons.Projectile
	projSeq     uint64

	events []Event

	over   bool
	winner string
	draw   bool
	reason EndReason
}

// New creates an engine for two distinct participants. Unknown or empty
// weapon ids fall back to the default weapon.
func New(cfg Config, catalog *weapons.Catalog, a, b Setup) (*Engine, error) {
	if a.ID == "" || b.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrUnknownActor)
	}
	if a.ID == b.ID {
		return nil, ErrSameCombatant
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.Arena.Max.X <= cfg.Arena.Min.X || cfg.Arena.Max.Y <= cfg.Arena.Min.Y {
		cfg.Arena = physics.NewRect(0, 0, DefaultArenaW, DefaultArenaH)
	}
	if catalog == nil {
		catalog = weapons.Default()
	}

	e := &Engine{
		cfg:     cfg,
		dt:      1.0 / float64(cfg.TickHz),
		catalog: catalog,
		dodge:   catalog.Dodge(),
		bounds:  cfg.Arena.Inset(cfg.Radius),
	}

	center := cfg.Arena.Center()
	offset := (cfg.Arena.Max.X - cfg.Arena.Min.X) / 4
	e.combatants[0] = e.spawn(a, physics.V(center.X-offset, center.Y), 0)
	e.combatants[1] = e.spawn(b, physics.V(center.X+offset, center.Y), math.Pi)
	return e, nil
}

func (e *Engine) spawn(s Setup, pos physics.Vec2, facing float64) *Combatant {
	weaponID := s.WeaponID
	if !e.catalog.Has(weaponID) {
		weaponID = weapons.DefaultWeaponID
	}
	attrs := s.Attributes.Sanitized()
	derived := stats.DeriveStats(attrs)
	return &Combatant{
		ID:         s.ID,
		IsCPU:      s.IsCPU,
		WeaponID:   weaponID,
		Pos:        physics.ClampToArena(pos, e.bounds),
		Facing:     facing,
		Radius:     e.cfg.Radius,
		HP:         derived.MaxHP,
		Stamina:    derived.MaxStamina,
		Attributes: attrs,
		Stats:      derived,
	}
}

// Dt returns the fixed timestep in seconds.
func (e *Engine) Dt() float64 { return e.dt }

// Tick returns the number of completed steps.
func (e *Engine) Tick() uint64 { return e.tick }

// Now returns the simulation clock in seconds.
func (e *Engine) Now() float64 { return e.now }

// Over reports whether the duel has a result.
func (e *Engine) Over() bool { return e.over }

// Result returns the winner (empty on a draw) and the end reason.
func (e *Engine) Result() (winner string, draw bool, reason EndReason) {
	return e.winner, e.draw, e.reason
}

// Catalog returns the weapon catalog the engine reads.
func (e *Engine) Catalog() *weapons.Catalog { return e.catalog }

// IDs returns both combatant ids in spawn order.
func (e *Engine) IDs() [2]string {
	return [2]string{e.combatants[0].ID, e.combatants[1].ID}
}

// Combatant returns a copy of the combatant with the given id.
func (e *Engine) Combatant(id string) (CombatantState, bool) {
	c := e.find(id)
	if c == nil {
		return CombatantState{}, false
	}
	return c.snapshot(), true
}

func (e *Engine) find(id string) *Combatant {
	for _, c := range e.combatants {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (e *Engine) opponent(c *Combatant) *Combatant {
	if e.combatants[0] == c {
		return e.combatants[1]
	}
	return e.combatants[0]
}

// Step advances the simulation by one fixed timestep. inputs is keyed by
// combatant id; a missing entry means "no input". The returned events are
// the ones produced by this tick. Step on a finished duel is a no-op.
//
// The order below is fixed: movement before hit resolution before
// projectile resolution, every tick.
func (e *Engine) Step(inputs map[string]Input) []Event {
	if e.over {
		return nil
	}
	e.tick++
	e.now = float64(e.tick) * e.dt
	e.events = e.events[:0]

	// 0. Refresh cached stats and accept new actions
	for _, c := range e.combatants {
		c.Stats = stats.DeriveStats(c.Attributes)
		in, ok := inputs[c.ID]
		if !ok {
			in = Input{Facing: c.Facing}
		}
		e.applyInput(c, in)
	}

	// 1. Movement
	for _, c := range e.combatants {
		e.move(c)
	}

	// 2. Action timelines and hit resolution
	for _, c := range e.combatants {
		e.advanceAction(c)
	}

	// 3. Circle separation, no damage
	a, b := e.combatants[0], e.combatants[1]
	a.Pos, b.Pos = physics.ResolveCircleCollision(a.Pos, a.Radius, b.Pos, b.Radius)
	a.Pos = physics.ClampToArena(a.Pos, e.bounds)
	b.Pos = physics.ClampToArena(b.Pos, e.bounds)

	// 4. Projectiles
	e.updateProjectiles()

	for _, c := range e.combatants {
		// 5. Stamina regen while idle
		if c.Action == nil {
			c.Stamina = stats.RegenStamina(c.Stamina, c.Stats.MaxStamina, c.Stats.StaminaRegen, e.dt)
		}
		// 6. I-frames lapse
		if c.Invulnerable && e.now+timeEpsilon >= c.InvulnerableUntil {
			c.Invulnerable = false
		}
		// Invariant clamps
		c.HP = stats.ClampHP(c.HP, c.Stats.MaxHP)
		c.Stamina = math.Max(0, math.Min(c.Stamina, c.Stats.MaxStamina))
	}

	// 7. Death check
	e.checkDeaths()

	// 8. Events for this tick
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

func (e *Engine) applyInput(c *Combatant, in Input) {
	if in.Seq > c.LastSeq {
		c.LastSeq = in.Seq
	}
	if !c.Action.Locked() && !math.IsNaN(in.Facing) && !math.IsInf(in.Facing, 0) {
		c.Facing = physics.NormalizeAngle(in.Facing)
	}

	// At most one new Attack or Dodge per tick; the first legal one wins.
	for _, act := range in.Actions {
		switch act.Kind {
		case ActionAttack:
			if e.startAttack(c, act) {
				return
			}
		case ActionDodge:
			dir := act.Direction
			if dir.Len() < physics.MinSeparation {
				dir = in.Move
			}
			if e.startDodge(c, dir) {
				return
			}
		}
	}

	if !c.Action.Locked() {
		c.Vel = physics.CalculateVelocity(sanitizeDir(in.Move), c.Stats.MoveSpeed)
	}
}

// canAttack reports whether c could start an attack with w right now.
func (e *Engine) canAttack(c *Combatant, w weapons.Weapon) bool {
	return c.Action == nil &&
		e.now+timeEpsilon >= c.AttackReadyAt &&
		stats.CanAfford(c.Stamina, w.StaminaCost)
}

func (e *Engine) startAttack(c *Combatant, act Action) bool {
	// Combatants fight with the loadout weapon they entered with.
	if act.WeaponID != "" && act.WeaponID != c.WeaponID {
		return false
	}
	w, ok := e.catalog.Get(c.WeaponID)
	if !ok || !e.canAttack(c, w) {
		return false
	}

	c.Stamina = stats.ConsumeStamina(c.Stamina, w.StaminaCost)
	c.AttackReadyAt = e.now + w.Cooldown
	c.Vel = physics.Vec2{}
	c.Action = &ActionState{
		Kind:           ActionAttack,
		Phase:          PhaseWindup,
		WeaponID:       w.ID,
		Direction:      physics.FromAngle(c.Facing),
		StartedAt:      e.now,
		PhaseEndsAt:    e.now + w.Windup,
		CooldownEndsAt: c.AttackReadyAt,
	}
	e.emit(Event{Type: EventAttack, ActorID: c.ID, WeaponID: w.ID})
	return true
}

func (e *Engine) startDodge(c *Combatant, dir physics.Vec2) bool {
	if c.Action != nil ||
		e.now+timeEpsilon < c.DodgeReadyAt ||
		!stats.CanAfford(c.Stamina, e.dodge.StaminaCost) {
		return false
	}

	dir = sanitizeDir(dir)
	if dir.Len() < physics.MinSeparation {
		dir = physics.FromAngle(c.Facing)
	}
	dir = dir.Normalize()

	c.Stamina = stats.ConsumeStamina(c.Stamina, e.dodge.StaminaCost)
	c.DodgeReadyAt = e.now + e.dodge.Cooldown
	c.Invulnerable = e.dodge.IFrames > 0
	c.InvulnerableUntil = e.now + e.dodge.IFrames
	c.Vel = e.dodge.Velocity(dir)
	c.Action = &ActionState{
		Kind:           ActionDodge,
		Phase:          PhaseActive,
		Direction:      dir,
		StartedAt:      e.now,
		PhaseEndsAt:    e.now + e.dodge.Duration,
		CooldownEndsAt: c.DodgeReadyAt,
	}
	e.emit(Event{Type: EventDodge, ActorID: c.ID})
	return true
}

func (e *Engine) move(c *Combatant) {
	if a := c.Action; a != nil {
		switch {
		case a.Kind == ActionDodge && a.Phase == PhaseActive:
			// The start tick moves too, so the last tick of the window doesn't.
			if e.now+timeEpsilon < a.PhaseEndsAt {
				c.Vel = e.dodge.Velocity(a.Direction)
			} else {
				c.Vel = physics.Vec2{}
			}
		case a.Locked():
			c.Vel = physics.Vec2{}
		}
	}
	c.Pos = physics.ClampToArena(physics.Integrate(c.Pos, c.Vel, e.dt), e.bounds)
}

// advanceAction walks the action through every phase boundary the clock
// has passed. Zero-length phases are crossed in the same tick.
func (e *Engine) advanceAction(c *Combatant) {
	for c.Action != nil && e.now+timeEpsilon >= c.Action.PhaseEndsAt {
		a := c.Action
		switch a.Kind {
		case ActionAttack:
			w, ok := e.catalog.Get(a.WeaponID)
			if !ok {
				c.Action = nil
				return
			}
			switch a.Phase {
			case PhaseWindup:
				a.Phase = PhaseActive
				a.PhaseEndsAt += w.Active
				if !a.HitResolved {
					a.HitResolved = true
					e.resolveAttack(c, w)
				}
			case PhaseActive:
				a.Phase = PhaseRecovery
				a.PhaseEndsAt += w.Recovery
			default:
				c.Action = nil
			}

		case ActionDodge:
			if a.Phase == PhaseActive {
				a.Phase = PhaseRecovery
				a.PhaseEndsAt += e.dodge.Recovery
				c.Vel = physics.Vec2{}
			} else {
				c.Action = nil
			}

		default:
			c.Action = nil
		}
	}
}

func (e *Engine) updateProjectiles() {
	alive := e.projectiles[:0]
	for _, p := range e.projectiles {
		if !p.Update(e.dt, e.cfg.Arena) {
			continue
		}
		if e.projectileHit(p) && !p.Pierce {
			continue
		}
		alive = append(alive, p)
	}
	// Clear dangling pointers past the new length
	for i := len(alive); i < len(e.projectiles); i++ {
		e.projectiles[i] = nil
	}
	e.projectiles = alive
}

func (e *Engine) checkDeaths() {
	a, b := e.combatants[0], e.combatants[1]
	deadA, deadB := !a.Alive(), !b.Alive()
	if deadA {
		e.emit(Event{Type: EventDeath, ActorID: a.ID})
	}
	if deadB {
		e.emit(Event{Type: EventDeath, ActorID: b.ID})
	}

	switch {
	case deadA && deadB:
		e.finish("", true, ReasonDoubleKO)
	case deadA:
		e.finish(b.ID, false, ReasonKO)
	case deadB:
		e.finish(a.ID, false, ReasonKO)
	}
}

func (e *Engine) finish(winner string, draw bool, reason EndReason) {
	e.over = true
	e.winner = winner
	e.draw = draw
	e.reason = reason
	for _, c := range e.combatants {
		c.Vel = physics.Vec2{}
	}
}

// Forfeit ends the duel with loserID losing. It is a no-op once over.
func (e *Engine) Forfeit(loserID string) error {
	loser := e.find(loserID)
	if loser == nil {
		return fmt.Errorf("%w: %s", ErrUnknownActor, loserID)
	}
	if e.over {
		return nil
	}
	e.finish(e.opponent(loser).ID, false, ReasonForfeit)
	return nil
}

// Abandon ends the duel as a no-contest draw. It is a no-op once over.
func (e *Engine) Abandon() {
	if e.over {
		return
	}
	e.finish("", true, ReasonAbandoned)
}

// Timeout ends the duel on time. The higher remaining HP fraction wins;
// equal fractions are a draw.
func (e *Engine) Timeout() {
	if e.over {
		return
	}
	a, b := e.combatants[0], e.combatants[1]
	fa := float64(a.HP) / float64(max(1, a.Stats.MaxHP))
	fb := float64(b.HP) / float64(max(1, b.Stats.MaxHP))
	switch {
	case math.Abs(fa-fb) < 1e-9:
		e.finish("", true, ReasonTimeout)
	case fa > fb:
		e.finish(a.ID, false, ReasonTimeout)
	default:
		e.finish(b.ID, false, ReasonTimeout)
	}
}

// State builds a snapshot. events are attached as given; the engine keeps
// no history beyond the current tick.
func (e *Engine) State(events []Event) CombatState {
	s := CombatState{
		MatchID:     e.cfg.MatchID,
		Tick:        e.tick,
		Time:        e.now,
		Arena:       e.cfg.Arena,
		Combatants:  make([]CombatantState, 0, len(e.combatants)),
		Projectiles: make([]weapons.Projectile, 0, len(e.projectiles)),
		Over:        e.over,
		Winner:      e.winner,
		Draw:        e.draw,
		Reason:      e.reason,
		Events:      events,
	}
	if s.Events == nil {
		s.Events = []Event{}
	}
	for _, c := range e.combatants {
		s.Combatants = append(s.Combatants, c.snapshot())
	}
	for _, p := range e.projectiles {
		s.Projectiles = append(s.Projectiles, p.Clone())
	}
	return s
}

func (e *Engine) emit(ev Event) {
	ev.Tick = e.tick
	e.events = append(e.events, ev)
}

// sanitizeDir zeroes non-finite directions.
func sanitizeDir(v physics.Vec2) physics.Vec2 {
	if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
		return physics.Vec2{}
	}
	return v
}
