package geom

import "math"

// Vec3 is a world-space position or direction. Y is up; the map plane is X/Z.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f} }
func (v Vec3) Len() float64         { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) FlatLenSq() float64   { return v.X*v.X + v.Z*v.Z }
func (v Vec3) IsZero() bool         { return v.X == 0 && v.Y == 0 && v.Z == 0 }
func (v Vec3) Flat() Vec3           { return Vec3{X: v.X, Z: v.Z} }

// DistSqXZ is the squared ground-plane distance; height is ignored for
// vision and capture tests.
func DistSqXZ(a, b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return dx*dx + dz*dz
}

// StepToward moves from toward to by at most maxStep on the ground plane.
// It returns the new position and whether to was reached.
func StepToward(from, to Vec3, maxStep float64) (Vec3, bool) {
	d := to.Sub(from).Flat()
	distSq := d.FlatLenSq()
	if distSq == 0 || maxStep <= 0 {
		return from, distSq == 0
	}
	dist := math.Sqrt(distSq)
	if dist <= maxStep {
		return Vec3{X: to.X, Y: from.Y, Z: to.Z}, true
	}
	f := maxStep / dist
	return Vec3{X: from.X + d.X*f, Y: from.Y, Z: from.Z + d.Z*f}, false
}

// Yaw returns the heading (radians, 0 = +Z) of a ground-plane direction.
func Yaw(dir Vec3) float64 {
	if dir.X == 0 && dir.Z == 0 {
		return 0
	}
	return math.Atan2(dir.X, dir.Z)
}

// Basis is a row-major 3x3 orientation matrix for a yaw-only rotation,
// which is what clients expect as orientationBasis.
func Basis(yaw float64) [9]float64 {
	s, c := math.Sincos(yaw)
	return [9]float64{
		c, 0, -s,
		0, 1, 0,
		s, 0, c,
	}
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
