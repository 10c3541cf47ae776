package mathx

import "math"

// Vec3 is a position in the horizontal (x, z) plane with height y.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Dist is the straight-line distance between a and b.
func Dist(a, b Vec3) float64 { return b.Sub(a).Len() }

// StepTowards moves from by at most maxStep along the straight line to to.
func StepTowards(from, to Vec3, maxStep float64) Vec3 {
	d := to.Sub(from)
	l := d.Len()
	if l <= maxStep || l == 0 {
		return to
	}
	return from.Add(d.Scale(maxStep / l))
}
