package weapons

import (
	"fmt"
	"math"

	"duel-arena/internal/physics"
)

// HitboxKind is the closed set of melee hitbox shapes.
type HitboxKind int

const (
	HitboxArc       HitboxKind = iota // Directional sweep (sword, axe)
	HitboxCircle                      // 360° area around the attacker (fists)
	HitboxRectangle                   // Narrow thrust in front of the attacker (spear)
)

var hitboxNames = map[HitboxKind]string{
	HitboxArc:       "arc",
	HitboxCircle:    "circle",
	HitboxRectangle: "rectangle",
}

func (k HitboxKind) String() string {
	if name, ok := hitboxNames[k]; ok {
		return name
	}
	return fmt.Sprintf("hitbox(%d)", int(k))
}

// MarshalText encodes the kind as its name.
func (k HitboxKind) MarshalText() ([]byte, error) {
	name, ok := hitboxNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown hitbox kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText rejects anything outside the closed set.
func (k *HitboxKind) UnmarshalText(text []byte) error {
	for kind, name := range hitboxNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown hitbox kind %q", string(text))
}

// Hitbox is a melee weapon's attack shape, evaluated once when the attack
// enters its active window.
type Hitbox struct {
	Kind HitboxKind `json:"kind"`
	// Range is the reach from the attacker's centre to the target's edge.
	Range float64 `json:"range" jsonschema:"minimum=0"`
	// ArcWidth is the full cone angle in radians (arc only).
	ArcWidth float64 `json:"arcWidth,omitempty" jsonschema:"minimum=0,maximum=6.283185307179586"`
	// Width is the thrust width in pixels (rectangle only).
	Width float64 `json:"width,omitempty" jsonschema:"minimum=0"`
}

// Contains reports whether a target circle is inside the hitbox of an
// attacker at origin facing the given heading. All checks are O(1).
func (h Hitbox) Contains(origin Vec2, facing float64, target Vec2, targetRadius float64) bool {
	dist := origin.Dist(target)

	switch h.Kind {
	case HitboxCircle:
		return dist-targetRadius <= h.Range

	case HitboxArc:
		if dist-targetRadius > h.Range {
			return false
		}
		return physics.IsInAttackArc(origin, facing, target, h.ArcWidth)

	case HitboxRectangle:
		// Rotate the target into the attacker's frame; the thrust box runs
		// along +X from the attacker's centre.
		local := target.Sub(origin).Rotate(-facing)
		box := physics.Rect{
			Min: physics.Vec2{X: 0, Y: -h.Width / 2},
			Max: physics.Vec2{X: h.Range, Y: h.Width / 2},
		}
		return physics.CircleRect(local, targetRadius, box)
	}

	return false
}

func (h Hitbox) validate() error {
	if _, ok := hitboxNames[h.Kind]; !ok {
		return fmt.Errorf("unknown hitbox kind %d", int(h.Kind))
	}
	if h.Range <= 0 {
		return fmt.Errorf("hitbox range must be positive")
	}
	switch h.Kind {
	case HitboxArc:
		if h.ArcWidth <= 0 || h.ArcWidth > 2*math.Pi {
			return fmt.Errorf("arc width %v outside (0, 2π]", h.ArcWidth)
		}
	case HitboxRectangle:
		if h.Width <= 0 {
			return fmt.Errorf("rectangle width must be positive")
		}
	}
	return nil
}

// Vec2 is re-exported so catalog callers don't need the physics import for positions.
type Vec2 = physics.Vec2
