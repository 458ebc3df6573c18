package weapons

import (
	"fmt"

	"duel-arena/internal/physics"
)

// Projectile is a moving attack spawned on a ranged weapon's active frame.
// Positions are in pixels, velocity in pixels per second.
type Projectile struct {
	ID       string       `json:"id" msgpack:"id"`
	OwnerID  string       `json:"ownerId" msgpack:"ownerId"`
	WeaponID string       `json:"weaponId" msgpack:"weaponId"`
	Pos      physics.Vec2 `json:"pos" msgpack:"pos"`
	Vel      physics.Vec2 `json:"vel" msgpack:"vel"`
	Radius   float64      `json:"radius" msgpack:"radius"`
	TTL      float64      `json:"ttl" msgpack:"ttl"` // seconds remaining
	Pierce   bool         `json:"pierce,omitempty" msgpack:"pierce,omitempty"`

	// Targets already struck. A piercing projectile damages each target once.
	hit map[string]struct{}
}

// SpawnProjectile creates a projectile for weapon w fired by ownerID from
// origin along facing. It starts at the owner's edge, not its centre.
// seq must be unique per engine so ids stay deterministic.
func SpawnProjectile(w Weapon, ownerID string, origin physics.Vec2, ownerRadius, facing float64, seq uint64) (*Projectile, error) {
	if w.Pattern != PatternProjectile || w.Projectile == nil {
		return nil, fmt.Errorf("weapon %s does not fire projectiles", w.ID)
	}
	spec := w.Projectile
	dir := physics.FromAngle(facing)

	return &Projectile{
		ID:       fmt.Sprintf("proj_%d_%s", seq, ownerID),
		OwnerID:  ownerID,
		WeaponID: w.ID,
		Pos:      origin.Add(dir.Scale(ownerRadius + spec.Radius)),
		Vel:      dir.Scale(spec.Speed),
		Radius:   spec.Radius,
		TTL:      spec.TTL,
		Pierce:   spec.Pierce,
	}, nil
}

// Update moves the projectile and decrements its lifetime.
// Returns false if the projectile should be removed (expired or left the arena).
func (p *Projectile) Update(dt float64, bounds physics.Rect) bool {
	p.Pos = physics.Integrate(p.Pos, p.Vel, dt)
	p.TTL -= dt

	if p.TTL <= 0 {
		return false
	}
	// Fully outside the arena
	if !physics.CircleRect(p.Pos, p.Radius, bounds) {
		return false
	}
	return true
}

// Hits tests the projectile against a target circle. The owner and targets
// already struck never register. A positive result records the target.
func (p *Projectile) Hits(targetID string, pos physics.Vec2, radius float64) bool {
	if targetID == p.OwnerID {
		return false
	}
	if _, done := p.hit[targetID]; done {
		return false
	}
	if !physics.CircleCircle(p.Pos, p.Radius, pos, radius) {
		return false
	}
	if p.hit == nil {
		p.hit = make(map[string]struct{}, 1)
	}
	p.hit[targetID] = struct{}{}
	return true
}

// HasHit reports whether targetID was already struck.
func (p *Projectile) HasHit(targetID string) bool {
	_, ok := p.hit[targetID]
	return ok
}

// Clone returns a copy safe to hand outside the engine.
func (p *Projectile) Clone() Projectile {
	c := *p
	c.hit = nil
	return c
}
