package client

import (
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
)

const (
	// DefaultDelay renders two 20 Hz broadcasts behind the newest snapshot.
	DefaultDelay = 100 * time.Millisecond
	maxBuffered  = 32
)

// Interpolator buffers snapshots and blends remote combatants between the
// two that bracket the render time. It never extrapolates.
type Interpolator struct {
	delay float64
	buf   []engine.CombatState
}

// NewInterpolator creates an interpolator rendering delay behind the newest
// snapshot. Zero uses DefaultDelay.
func NewInterpolator(delay time.Duration) *Interpolator {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Interpolator{delay: delay.Seconds()}
}

// Push adds a snapshot. Snapshots not newer than the last one are dropped.
func (it *Interpolator) Push(state engine.CombatState) bool {
	if n := len(it.buf); n > 0 && state.Time <= it.buf[n-1].Time {
		return false
	}
	it.buf = append(it.buf, state)
	if len(it.buf) > maxBuffered {
		it.buf = it.buf[len(it.buf)-maxBuffered:]
	}
	return true
}

// Len returns the number of buffered snapshots.
func (it *Interpolator) Len() int {
	return len(it.buf)
}

// RenderTime is the simulation time the client should draw.
func (it *Interpolator) RenderTime() float64 {
	if len(it.buf) == 0 {
		return 0
	}
	return it.buf[len(it.buf)-1].Time - it.delay
}

// Sample returns combatants blended at simulation time t. Outside the
// buffered range it clamps to the nearest snapshot.
func (it *Interpolator) Sample(t float64) ([]engine.CombatantState, bool) {
	n := len(it.buf)
	if n == 0 {
		return nil, false
	}
	if t <= it.buf[0].Time {
		return cloneCombatants(it.buf[0].Combatants), true
	}
	if t >= it.buf[n-1].Time {
		return cloneCombatants(it.buf[n-1].Combatants), true
	}

	k := 1
	for it.buf[k].Time < t {
		k++
	}
	a, b := it.buf[k-1], it.buf[k]
	frac := (t - a.Time) / (b.Time - a.Time)

	// Older snapshots can never bracket a later render time
	if k-1 > 0 {
		it.buf = append(it.buf[:0], it.buf[k-1:]...)
	}

	out := cloneCombatants(b.Combatants)
	for j := range out {
		prev, ok := a.Combatant(out[j].ID)
		if !ok {
			continue
		}
		out[j].Pos = physics.Lerp(prev.Pos, out[j].Pos, frac)
		out[j].Facing = lerpAngle(prev.Facing, out[j].Facing, frac)
	}
	return out, true
}

// Current samples at RenderTime.
func (it *Interpolator) Current() ([]engine.CombatantState, bool) {
	return it.Sample(it.RenderTime())
}

func lerpAngle(a, b, t float64) float64 {
	return physics.NormalizeAngle(a + physics.NormalizeAngle(b-a)*t)
}

func cloneCombatants(in []engine.CombatantState) []engine.CombatantState {
	return append([]engine.CombatantState(nil), in...)
}
