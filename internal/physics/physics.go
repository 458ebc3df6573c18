package physics

import "math"

// overlapEpsilon absorbs float error left over after a separation so a
// second pass sees the circles as touching, not overlapping.
const overlapEpsilon = 1e-9

// Rect is an axis-aligned rectangle. Min is the top-left corner.
type Rect struct {
	Min Vec2 `json:"min" msgpack:"min"`
	Max Vec2 `json:"max" msgpack:"max"`
}

// NewRect builds a rectangle from its top-left corner and size.
func NewRect(x, y, w, h float64) Rect {
	return Rect{Min: Vec2{X: x, Y: y}, Max: Vec2{X: x + w, Y: y + h}}
}

// Contains reports whether p lies inside the rectangle (edges included).
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Inset shrinks the rectangle by margin on every side.
// A margin larger than half the size collapses the axis to its centre.
func (r Rect) Inset(margin float64) Rect {
	out := Rect{
		Min: Vec2{X: r.Min.X + margin, Y: r.Min.Y + margin},
		Max: Vec2{X: r.Max.X - margin, Y: r.Max.Y - margin},
	}
	if out.Min.X > out.Max.X {
		c := (r.Min.X + r.Max.X) / 2
		out.Min.X, out.Max.X = c, c
	}
	if out.Min.Y > out.Max.Y {
		c := (r.Min.Y + r.Max.Y) / 2
		out.Min.Y, out.Max.Y = c, c
	}
	return out
}

// Center returns the rectangle centre.
func (r Rect) Center() Vec2 {
	return Vec2{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Integrate advances a position by velocity over dt seconds.
func Integrate(pos, vel Vec2, dt float64) Vec2 {
	return Vec2{X: pos.X + vel.X*dt, Y: pos.Y + vel.Y*dt}
}

// ClampToArena clamps a position into bounds, axis by axis.
// Positions already inside are returned unchanged.
func ClampToArena(pos Vec2, bounds Rect) Vec2 {
	return Vec2{
		X: math.Max(bounds.Min.X, math.Min(bounds.Max.X, pos.X)),
		Y: math.Max(bounds.Min.Y, math.Min(bounds.Max.Y, pos.Y)),
	}
}

// CalculateVelocity turns a movement direction into a velocity.
// Directions longer than 1 are normalized so diagonals are not faster;
// shorter directions (analog input) keep their magnitude.
func CalculateVelocity(dir Vec2, speed float64) Vec2 {
	if dir.Len() > 1 {
		dir = dir.Normalize()
	}
	return dir.Scale(speed)
}

// CircleCircle reports whether two circles overlap.
// Touching circles (distance == ra+rb) do not overlap.
func CircleCircle(a Vec2, ra float64, b Vec2, rb float64) bool {
	return a.Dist(b) < ra+rb
}

// CircleRect reports whether a circle overlaps an axis-aligned rectangle,
// using the closest point on the rectangle to the circle centre.
func CircleRect(c Vec2, r float64, rect Rect) bool {
	closest := ClampToArena(c, rect)
	return c.Dist(closest) < r
}

// ResolveCircleCollision separates two overlapping circles by pushing each
// back by half the overlap along the line between their centres.
// Non-overlapping circles are returned unchanged, so applying it twice is
// the same as applying it once.
func ResolveCircleCollision(a Vec2, ra float64, b Vec2, rb float64) (Vec2, Vec2) {
	delta := b.Sub(a)
	dist := delta.Len()
	overlap := ra + rb - dist
	if overlap <= overlapEpsilon {
		return a, b
	}

	// Coincident centres: pick +X so the result stays deterministic.
	normal := Vec2{X: 1}
	if dist >= MinSeparation {
		normal = delta.Scale(1 / dist)
	}

	push := normal.Scale(overlap / 2)
	return a.Sub(push), b.Add(push)
}

// IsInAttackArc reports whether target lies within the cone of arcWidth
// radians centred on facing, as seen from attacker. Range is not checked.
func IsInAttackArc(attacker Vec2, facing float64, target Vec2, arcWidth float64) bool {
	delta := target.Sub(attacker)
	if delta.Len() < MinSeparation {
		return true
	}
	diff := NormalizeAngle(delta.Angle() - facing)
	return math.Abs(diff) <= arcWidth/2
}
