package mathx

import "math"

// Vector is a point or displacement in world units. Z is altitude.
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func Vec(x, y, z float64) Vector { return Vector{X: x, Y: y, Z: z} }

func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector) Scale(k float64) Vector {
	return Vector{v.X * k, v.Y * k, v.Z * k}
}

func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vector) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// NormXY is the magnitude of the horizontal projection.
func (v Vector) NormXY() float64 { return math.Hypot(v.X, v.Y) }

// XY drops the vertical component.
func (v Vector) XY() Vector { return Vector{X: v.X, Y: v.Y} }

func (v Vector) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

func (v Vector) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Unit returns v scaled to length 1, or the zero vector if v has no length.
func (v Vector) Unit() Vector {
	n := v.Norm()
	if n == 0 {
		return Vector{}
	}
	return v.Scale(1 / n)
}

// ClampNorm shortens v to at most max. A non-positive max means unbounded.
func (v Vector) ClampNorm(max float64) Vector {
	if max <= 0 || math.IsInf(max, 1) {
		return v
	}
	n := v.Norm()
	if n <= max {
		return v
	}
	return v.Scale(max / n)
}

func Dist(a, b Vector) float64 { return b.Sub(a).Norm() }

// Direction is the unit vector pointing from a to b.
func Direction(a, b Vector) Vector { return b.Sub(a).Unit() }
