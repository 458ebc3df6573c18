package engine

import (
	"duel-arena/internal/stats"
	"duel-arena/internal/weapons"
)

// resolveAttack runs once, on the tick an attack enters its active window.
// Melee tests the hitbox against the opponent; ranged spawns a projectile.
func (e *Engine) resolveAttack(attacker *Combatant, w weapons.Weapon) {
	switch w.Pattern {
	case weapons.PatternProjectile:
		if len(e.projectiles) >= MaxProjectiles {
			return
		}
		e.projSeq++
		p, err := weapons.SpawnProjectile(w, attacker.ID, attacker.Pos, attacker.Radius, attacker.Facing, e.projSeq)
		if err != nil {
			return
		}
		e.projectiles = append(e.projectiles, p)
		e.emit(Event{Type: EventProjectile, ActorID: attacker.ID, WeaponID: w.ID, ProjectileID: p.ID})

	case weapons.PatternMelee:
		target := e.opponent(attacker)
		if w.Hitbox == nil {
			return
		}
		if !w.Hitbox.Contains(attacker.Pos, attacker.Facing, target.Pos, target.Radius) {
			return
		}
		e.applyHit(attacker, target, w, "")
	}
}

// projectileHit tests p against every non-owner combatant. It reports
// whether anything was struck.
func (e *Engine) projectileHit(p *weapons.Projectile) bool {
	owner := e.find(p.OwnerID)
	w, ok := e.catalog.Get(p.WeaponID)
	if owner == nil || !ok {
		return false
	}

	struck := false
	for _, target := range e.combatants {
		if !p.Hits(target.ID, target.Pos, target.Radius) {
			continue
		}
		struck = true
		e.applyHit(owner, target, w, p.ID)
		if !p.Pierce {
			break
		}
	}
	return struck
}

// applyHit applies damage and i-frame rules shared by melee and projectiles.
// A target already at zero HP still registers hits so both sides of a
// trade resolve in the same tick.
func (e *Engine) applyHit(attacker, target *Combatant, w weapons.Weapon, projectileID string) {
	if target.Invulnerable {
		e.emit(Event{
			Type:         EventEvade,
			ActorID:      attacker.ID,
			TargetID:     target.ID,
			WeaponID:     w.ID,
			ProjectileID: projectileID,
			TargetHP:     target.HP,
		})
		return
	}

	dmg := stats.CalculateDamage(w.Scaling(), attacker.Attributes, target.Attributes, false)
	target.HP = stats.ClampHP(target.HP-dmg, target.Stats.MaxHP)
	e.emit(Event{
		Type:         EventHit,
		ActorID:      attacker.ID,
		TargetID:     target.ID,
		WeaponID:     w.ID,
		ProjectileID: projectileID,
		Damage:       dmg,
		TargetHP:     target.HP,
	})
}
