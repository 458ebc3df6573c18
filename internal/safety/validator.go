package safety

import (
	"errors"
	"fmt"
	"math"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/weapons"
)

// Reason is the machine-readable cause of a rejected input.
type Reason string

const (
	ReasonInvalidDirection    Reason = "invalid_direction"
	ReasonInvalidAction       Reason = "invalid_action"
	ReasonInsufficientStamina Reason = "insufficient_stamina"
	ReasonOnCooldown          Reason = "on_cooldown"
	ReasonActionInProgress    Reason = "action_in_progress"
	ReasonUnknownWeapon       Reason = "unknown_weapon"
	ReasonWeaponNotEquipped   Reason = "weapon_not_equipped"
	ReasonNotParticipant      Reason = "not_participant"
	ReasonMatchNotActive      Reason = "match_not_active"
)

const (
	// DirectionTolerance absorbs float error on unit-length input vectors.
	DirectionTolerance = 1e-3
	// MaxActionsPerInput bounds the actions list of one input.
	MaxActionsPerInput = 4
)

// Rejection is a rejected input. It goes back to the originating
// connection only and never touches the simulation.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Reject builds a Rejection.
func Reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

// Validator checks input shape and action legality against the latest
// authoritative state of the sender's combatant.
type Validator struct {
	catalog   *weapons.Catalog
	tolerance float64
}

// NewValidator creates a validator reading weapon costs from catalog.
func NewValidator(catalog *weapons.Catalog) *Validator {
	if catalog == nil {
		catalog = weapons.Default()
	}
	return &Validator{catalog: catalog, tolerance: DirectionTolerance}
}

// Validate returns nil or a *Rejection. now is the simulation clock the
// state was taken at.
func (v *Validator) Validate(in engine.Input, self engine.CombatantState, now float64) error {
	if err := v.checkDirection(in.Move); err != nil {
		return err
	}
	if !finite(in.Facing) {
		return Reject(ReasonInvalidDirection, "facing is not finite")
	}
	if len(in.Actions) > MaxActionsPerInput {
		return Reject(ReasonInvalidAction, "%d actions, max %d", len(in.Actions), MaxActionsPerInput)
	}

	dodge := v.catalog.Dodge()
	for _, act := range in.Actions {
		switch act.Kind {
		case engine.ActionMove:
			if err := v.checkDirection(act.Direction); err != nil {
				return err
			}

		case engine.ActionAttack:
			id := act.WeaponID
			if id == "" {
				id = self.WeaponID
			}
			w, ok := v.catalog.Get(id)
			if !ok {
				return Reject(ReasonUnknownWeapon, "%q", id)
			}
			if id != self.WeaponID {
				return Reject(ReasonWeaponNotEquipped, "%q, carrying %q", id, self.WeaponID)
			}
			if self.Action != nil {
				return Reject(ReasonActionInProgress, "%s in %s", self.Action.Kind, self.Action.Phase)
			}
			if now+v.tolerance < self.AttackReadyAt {
				return Reject(ReasonOnCooldown, "ready in %.2fs", self.AttackReadyAt-now)
			}
			if self.Stamina < w.StaminaCost {
				return Reject(ReasonInsufficientStamina, "have %.1f, need %.1f", self.Stamina, w.StaminaCost)
			}

		case engine.ActionDodge:
			if err := v.checkDirection(act.Direction); err != nil {
				return err
			}
			if self.Action != nil {
				return Reject(ReasonActionInProgress, "%s in %s", self.Action.Kind, self.Action.Phase)
			}
			if now+v.tolerance < self.DodgeReadyAt {
				return Reject(ReasonOnCooldown, "dodge ready in %.2fs", self.DodgeReadyAt-now)
			}
			if self.Stamina < dodge.StaminaCost {
				return Reject(ReasonInsufficientStamina, "have %.1f, need %.1f", self.Stamina, dodge.StaminaCost)
			}

		default:
			return Reject(ReasonInvalidAction, "kind %d", act.Kind)
		}
	}
	return nil
}

// checkDirection rejects non-finite vectors and magnitudes above 1 plus
// tolerance (speed hacks).
func (v *Validator) checkDirection(d physics.Vec2) error {
	if !finite(d.X) || !finite(d.Y) {
		return Reject(ReasonInvalidDirection, "direction is not finite")
	}
	if mag := d.Len(); mag > 1+v.tolerance {
		return Reject(ReasonInvalidDirection, "magnitude %.4f exceeds 1", mag)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
