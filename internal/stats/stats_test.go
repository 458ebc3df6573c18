package stats

import (
	"math"
	"testing"
)

// TestDeriveStatsBounds checks reduction bounds and positive pools for many attribute sets
func TestDeriveStatsBounds(t *testing.T) {
	for con := -5; con <= 100; con += 7 {
		for def := -10; def <= 200; def += 13 {
			d := DeriveStats(Attributes{Constitution: con, Defense: def, Speed: con})
			if d.DamageReduction < 0 || d.DamageReduction > MaxReduction {
				t.Errorf("CON=%d DEF=%d: reduction %v out of [0,%v]", con, def, d.DamageReduction, MaxReduction)
			}
			if d.MaxHP <= 0 {
				t.Errorf("CON=%d: MaxHP should be positive, got %d", con, d.MaxHP)
			}
			if d.MaxStamina <= 0 {
				t.Errorf("CON=%d: MaxStamina should be positive, got %v", con, d.MaxStamina)
			}
		}
	}
}

// TestDeriveStatsFormulas checks each derived value
func TestDeriveStatsFormulas(t *testing.T) {
	d := DeriveStats(Attributes{Constitution: 5, Speed: 50, Defense: 20})
	if d.MaxHP != 150 {
		t.Errorf("Expected MaxHP 150, got %d", d.MaxHP)
	}
	if d.MaxStamina != 125 {
		t.Errorf("Expected MaxStamina 125, got %v", d.MaxStamina)
	}
	if d.MoveSpeed != 300 {
		t.Errorf("Expected MoveSpeed 300, got %v", d.MoveSpeed)
	}
	if math.Abs(d.DamageReduction-0.2) > 1e-12 {
		t.Errorf("Expected reduction 0.2, got %v", d.DamageReduction)
	}
	if d.StaminaRegen != StaminaRegen {
		t.Errorf("Expected regen %v, got %v", StaminaRegen, d.StaminaRegen)
	}

	capped := DeriveStats(Attributes{Defense: 500})
	if capped.DamageReduction != MaxReduction {
		t.Errorf("Expected reduction capped at %v, got %v", MaxReduction, capped.DamageReduction)
	}
}

// TestDamageScenario walks the reference example: STR 10 vs DEF 20
func TestDamageScenario(t *testing.T) {
	w := Scaling{BaseDamage: 15, StrScale: 0.7, DexScale: 0.3}
	attacker := Attributes{Strength: 10, Dexterity: 0}
	defender := Attributes{Defense: 20}

	if raw := RawDamage(w, attacker); raw != 22 {
		t.Errorf("Expected raw 22, got %d", raw)
	}
	if got := CalculateDamage(w, attacker, defender, false); got != 17 {
		t.Errorf("Expected final 17, got %d", got)
	}
}

// TestCalculateDamageInvulnerable returns exactly zero regardless of inputs
func TestCalculateDamageInvulnerable(t *testing.T) {
	weapons := []Scaling{
		{BaseDamage: 1},
		{BaseDamage: 15, StrScale: 0.7, DexScale: 0.3},
		{BaseDamage: 500, StrScale: 5, DexScale: 5},
	}
	for _, w := range weapons {
		for _, str := range []int{0, 10, 99} {
			got := CalculateDamage(w, Attributes{Strength: str, Dexterity: str}, Attributes{}, true)
			if got != 0 {
				t.Errorf("Invulnerable defender took %d damage", got)
			}
		}
	}
}

// TestCalculateDamageMinimumOne never rounds a landed hit to zero
func TestCalculateDamageMinimumOne(t *testing.T) {
	tests := []struct {
		name string
		w    Scaling
		def  int
	}{
		{"zero base", Scaling{}, 0},
		{"tiny base max armor", Scaling{BaseDamage: 1}, 1000},
		{"fractional", Scaling{BaseDamage: 0.4}, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDamage(tt.w, Attributes{}, Attributes{Defense: tt.def}, false)
			if got < 1 {
				t.Errorf("Expected at least 1 damage, got %d", got)
			}
		})
	}
}

// TestStaminaArithmetic covers consume, regen, and legality
func TestStaminaArithmetic(t *testing.T) {
	if !CanAfford(25, 25) {
		t.Error("Exact stamina should afford the cost")
	}
	if CanAfford(24.9, 25) {
		t.Error("Insufficient stamina should not afford the cost")
	}
	if got := ConsumeStamina(10, 25); got != 0 {
		t.Errorf("Consume should clamp at 0, got %v", got)
	}
	if got := RegenStamina(95, 100, 20, 0.5); got != 100 {
		t.Errorf("Regen should clamp at max, got %v", got)
	}
	if got := RegenStamina(50, 100, 20, 0.5); got != 60 {
		t.Errorf("Expected 60 after regen, got %v", got)
	}
}

// TestClampHP keeps hp inside bounds
func TestClampHP(t *testing.T) {
	if got := ClampHP(-12, 100); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if got := ClampHP(150, 100); got != 100 {
		t.Errorf("Expected 100, got %d", got)
	}
	if got := ClampHP(42, 100); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}
