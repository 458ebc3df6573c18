// Package weapons is the static catalog of attack patterns plus the
// projectile helpers ranged attacks use.
//
// Definitions are immutable for the duration of a match. Swapping a weapon
// only changes which definition an Attack action reads.
package weapons

import (
	"fmt"
	"math"

	"duel-arena/internal/physics"
	"duel-arena/internal/stats"
)

// DefaultWeaponID is the weapon used when a participant asks for nothing.
const DefaultWeaponID = "fists"

// Pattern selects how an attack resolves on its active frame.
type Pattern int

const (
	PatternMelee      Pattern = iota // Range + hitbox test against the opponent
	PatternProjectile                // Spawns a Projectile instead
)

func (p Pattern) String() string {
	switch p {
	case PatternMelee:
		return "melee"
	case PatternProjectile:
		return "projectile"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

func (p Pattern) MarshalText() ([]byte, error) {
	switch p {
	case PatternMelee, PatternProjectile:
		return []byte(p.String()), nil
	}
	return nil, fmt.Errorf("unknown pattern %d", int(p))
}

func (p *Pattern) UnmarshalText(text []byte) error {
	switch string(text) {
	case "melee":
		*p = PatternMelee
	case "projectile":
		*p = PatternProjectile
	default:
		return fmt.Errorf("unknown attack pattern %q", string(text))
	}
	return nil
}

// ProjectileSpec configures what a ranged attack spawns.
type ProjectileSpec struct {
	Speed  float64 `json:"speed" jsonschema:"description=Pixels per second,minimum=0"`
	Radius float64 `json:"radius" jsonschema:"minimum=0"`
	TTL    float64 `json:"ttl" jsonschema:"description=Lifetime in seconds,minimum=0"`
	Pierce bool    `json:"pierce,omitempty"`
}

// Weapon is one attack definition. All durations are in seconds.
type Weapon struct {
	ID      string  `json:"id" jsonschema:"required,pattern=^[a-z0-9_-]+$"`
	Name    string  `json:"name"`
	Pattern Pattern `json:"pattern" jsonschema:"required"`

	BaseDamage float64 `json:"baseDamage" jsonschema:"minimum=0"`
	StrScale   float64 `json:"strScale" jsonschema:"minimum=0"`
	DexScale   float64 `json:"dexScale" jsonschema:"minimum=0"`

	// Range is used by the AI to decide when to commit. For melee it
	// matches the hitbox reach.
	Range float64 `json:"range" jsonschema:"minimum=0"`

	Windup      float64 `json:"windup" jsonschema:"minimum=0"`
	Active      float64 `json:"active" jsonschema:"minimum=0"`
	Recovery    float64 `json:"recovery" jsonschema:"minimum=0"`
	Cooldown    float64 `json:"cooldown" jsonschema:"description=Seconds from attack start until the next attack,minimum=0"`
	StaminaCost float64 `json:"staminaCost" jsonschema:"minimum=0"`

	Hitbox     *Hitbox         `json:"hitbox,omitempty"`
	Projectile *ProjectileSpec `json:"projectile,omitempty"`
}

// Scaling returns the damage-formula view of the weapon.
func (w Weapon) Scaling() stats.Scaling {
	return stats.Scaling{BaseDamage: w.BaseDamage, StrScale: w.StrScale, DexScale: w.DexScale}
}

// Duration is windup + active + recovery: how long the action locks the combatant.
func (w Weapon) Duration() float64 {
	return w.Windup + w.Active + w.Recovery
}

func (w Weapon) validate() error {
	if w.ID == "" {
		return fmt.Errorf("weapon id is required")
	}
	if w.BaseDamage < 0 || w.StrScale < 0 || w.DexScale < 0 {
		return fmt.Errorf("weapon %s: damage and scaling must be non-negative", w.ID)
	}
	if w.Windup < 0 || w.Recovery < 0 || w.Active <= 0 {
		return fmt.Errorf("weapon %s: windup/recovery must be >= 0 and active > 0", w.ID)
	}
	if w.Cooldown < w.Duration() {
		return fmt.Errorf("weapon %s: cooldown %.2fs shorter than action %.2fs", w.ID, w.Cooldown, w.Duration())
	}
	if w.StaminaCost < 0 {
		return fmt.Errorf("weapon %s: stamina cost must be non-negative", w.ID)
	}

	switch w.Pattern {
	case PatternMelee:
		if w.Hitbox == nil {
			return fmt.Errorf("weapon %s: melee weapon needs a hitbox", w.ID)
		}
		if err := w.Hitbox.validate(); err != nil {
			return fmt.Errorf("weapon %s: %w", w.ID, err)
		}
	case PatternProjectile:
		p := w.Projectile
		if p == nil {
			return fmt.Errorf("weapon %s: projectile weapon needs a projectile spec", w.ID)
		}
		if p.Speed <= 0 || p.Radius <= 0 || p.TTL <= 0 {
			return fmt.Errorf("weapon %s: projectile speed, radius and ttl must be positive", w.ID)
		}
	default:
		return fmt.Errorf("weapon %s: unknown pattern %d", w.ID, int(w.Pattern))
	}
	return nil
}

// DodgeSpec is the roll definition shared by every combatant.
type DodgeSpec struct {
	Duration    float64 `json:"duration" jsonschema:"description=Roll time in seconds"`
	Distance    float64 `json:"distance" jsonschema:"description=Roll length in pixels"`
	IFrames     float64 `json:"iframes" jsonschema:"description=Invulnerable seconds from roll start"`
	Recovery    float64 `json:"recovery"`
	Cooldown    float64 `json:"cooldown" jsonschema:"description=Seconds from roll start until the next roll"`
	StaminaCost float64 `json:"staminaCost"`
}

// Speed is the roll velocity magnitude.
func (d DodgeSpec) Speed() float64 {
	return d.Distance / d.Duration
}

// Velocity is the roll velocity along dir. A zero direction yields zero.
func (d DodgeSpec) Velocity(dir physics.Vec2) physics.Vec2 {
	if dir.Len() < physics.MinSeparation {
		return physics.Vec2{}
	}
	return dir.Normalize().Scale(d.Speed())
}

func (d DodgeSpec) validate() error {
	if d.Duration <= 0 || d.Distance <= 0 {
		return fmt.Errorf("dodge duration and distance must be positive")
	}
	if d.IFrames < 0 || d.IFrames > d.Duration {
		return fmt.Errorf("dodge iframes must be within the roll duration")
	}
	if d.Recovery < 0 || d.StaminaCost < 0 {
		return fmt.Errorf("dodge recovery and cost must be non-negative")
	}
	if d.Cooldown < d.Duration+d.Recovery {
		return fmt.Errorf("dodge cooldown shorter than the roll")
	}
	return nil
}

// DefaultDodge is the standard roll.
var DefaultDodge = DodgeSpec{
	Duration:    0.30,
	Distance:    120,
	IFrames:     0.20,
	Recovery:    0.10,
	Cooldown:    0.80,
	StaminaCost: 25,
}

// defaultWeapons is the built-in catalog used when no file is configured.
// NOTE: melee Range equals hitbox Range so the AI only commits when the hit can land.
var defaultWeapons = []Weapon{
	{
		ID: "fists", Name: "Fists", Pattern: PatternMelee,
		BaseDamage: 8, StrScale: 0.5, DexScale: 0.5, Range: 40,
		Windup: 0.08, Active: 0.08, Recovery: 0.12, Cooldown: 0.4, StaminaCost: 8,
		Hitbox: &Hitbox{Kind: HitboxCircle, Range: 40},
	},
	{
		ID: "sword", Name: "Sword", Pattern: PatternMelee,
		BaseDamage: 15, StrScale: 0.7, DexScale: 0.3, Range: 60,
		Windup: 0.15, Active: 0.10, Recovery: 0.20, Cooldown: 0.6, StaminaCost: 15,
		Hitbox: &Hitbox{Kind: HitboxArc, Range: 60, ArcWidth: 2 * math.Pi / 3},
	},
	{
		ID: "spear", Name: "Spear", Pattern: PatternMelee,
		BaseDamage: 13, StrScale: 0.5, DexScale: 0.5, Range: 100,
		Windup: 0.20, Active: 0.10, Recovery: 0.25, Cooldown: 0.75, StaminaCost: 14,
		Hitbox: &Hitbox{Kind: HitboxRectangle, Range: 100, Width: 30},
	},
	{
		ID: "hammer", Name: "War Hammer", Pattern: PatternMelee,
		BaseDamage: 28, StrScale: 1.0, DexScale: 0, Range: 55,
		Windup: 0.40, Active: 0.12, Recovery: 0.35, Cooldown: 1.2, StaminaCost: 28,
		Hitbox: &Hitbox{Kind: HitboxArc, Range: 55, ArcWidth: 5 * math.Pi / 6},
	},
	{
		ID: "bow", Name: "Bow", Pattern: PatternProjectile,
		BaseDamage: 12, StrScale: 0.1, DexScale: 0.9, Range: 450,
		Windup: 0.25, Active: 0.05, Recovery: 0.20, Cooldown: 0.9, StaminaCost: 12,
		Projectile: &ProjectileSpec{Speed: 600, Radius: 6, TTL: 1.2},
	},
	{
		ID: "crossbow", Name: "Crossbow", Pattern: PatternProjectile,
		BaseDamage: 20, StrScale: 0, DexScale: 1.0, Range: 500,
		Windup: 0.45, Active: 0.05, Recovery: 0.30, Cooldown: 1.4, StaminaCost: 20,
		Projectile: &ProjectileSpec{Speed: 800, Radius: 5, TTL: 1.0, Pierce: true},
	},
}
