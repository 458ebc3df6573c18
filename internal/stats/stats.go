// Package stats derives secondary combat stats from base attributes and
// computes mitigated damage.
package stats

import "math"

// Balance constants. These are server-authoritative and cannot be changed by clients.
const (
	BaseHP         = 100.0
	HPPerCon       = 10.0
	BaseStamina    = 100.0
	StaminaPerCon  = 5.0
	StaminaRegen   = 20.0  // per second
	BaseSpeed      = 200.0 // pixels per second
	DefToReduction = 0.01
	MaxReduction   = 0.75

	// damageEpsilon keeps floor() from dropping a whole point to float error
	// (e.g. 10*0.7 landing just under 7).
	damageEpsilon = 1e-9
)

// Attributes are the base stats chosen at match setup.
type Attributes struct {
	Constitution int `json:"constitution" msgpack:"constitution"`
	Strength     int `json:"strength" msgpack:"strength"`
	Dexterity    int `json:"dexterity" msgpack:"dexterity"`
	Speed        int `json:"speed" msgpack:"speed"`
	Defense      int `json:"defense" msgpack:"defense"`
}

// Sanitized returns a copy with negative attributes clamped to zero.
func (a Attributes) Sanitized() Attributes {
	return Attributes{
		Constitution: max(0, a.Constitution),
		Strength:     max(0, a.Strength),
		Dexterity:    max(0, a.Dexterity),
		Speed:        max(0, a.Speed),
		Defense:      max(0, a.Defense),
	}
}

// Derived holds the secondary stats computed from Attributes.
type Derived struct {
	MaxHP           int     `json:"maxHp" msgpack:"maxHp"`
	MaxStamina      float64 `json:"maxStamina" msgpack:"maxStamina"`
	StaminaRegen    float64 `json:"staminaRegen" msgpack:"staminaRegen"`
	MoveSpeed       float64 `json:"moveSpeed" msgpack:"moveSpeed"`
	DamageReduction float64 `json:"damageReduction" msgpack:"damageReduction"`
}

// DeriveStats computes secondary stats. Negative attributes count as zero,
// so MaxHP and MaxStamina are always positive and DamageReduction always
// lies in [0, MaxReduction].
func DeriveStats(base Attributes) Derived {
	a := base.Sanitized()
	return Derived{
		MaxHP:           int(BaseHP + float64(a.Constitution)*HPPerCon),
		MaxStamina:      BaseStamina + float64(a.Constitution)*StaminaPerCon,
		StaminaRegen:    StaminaRegen,
		MoveSpeed:       BaseSpeed * (1 + float64(a.Speed)/100),
		DamageReduction: math.Min(float64(a.Defense)*DefToReduction, MaxReduction),
	}
}

// Scaling is the subset of a weapon definition the damage formula reads.
type Scaling struct {
	BaseDamage float64
	StrScale   float64
	DexScale   float64
}

// RawDamage computes pre-mitigation damage: floor(base + STR*strScale + DEX*dexScale).
func RawDamage(w Scaling, attacker Attributes) int {
	a := attacker.Sanitized()
	raw := w.BaseDamage + float64(a.Strength)*w.StrScale + float64(a.Dexterity)*w.DexScale
	return int(math.Floor(raw + damageEpsilon))
}

// Mitigate applies a damage reduction fraction. The result is never below 1.
func Mitigate(raw int, reduction float64) int {
	reduction = clamp(reduction, 0, MaxReduction)
	final := int(math.Floor(float64(raw)*(1-reduction) + damageEpsilon))
	return max(1, final)
}

// CalculateDamage runs the full pipeline. An invulnerable defender takes
// exactly 0: dodge i-frames are an absolute block, not a reduction.
func CalculateDamage(w Scaling, attacker, defender Attributes, invulnerable bool) int {
	if invulnerable {
		return 0
	}
	return Mitigate(RawDamage(w, attacker), DeriveStats(defender).DamageReduction)
}

// CanAfford reports whether an action costing cost is legal.
func CanAfford(current, cost float64) bool {
	return current >= cost
}

// ConsumeStamina deducts cost, clamped at zero.
func ConsumeStamina(current, cost float64) float64 {
	return math.Max(0, current-cost)
}

// RegenStamina adds rate*dt, clamped to maxStamina.
func RegenStamina(current, maxStamina, rate, dt float64) float64 {
	return clamp(current+rate*dt, 0, maxStamina)
}

// ClampHP keeps HP inside [0, maxHP].
func ClampHP(hp, maxHP int) int {
	return min(max(hp, 0), maxHP)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
