// Package geom holds the 2D vector and segment primitives shared by the
// movement engine. Bounding boxes, polygons and line strings are orb types so
// they can be handed straight to the spatial index and the planar helpers.
package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// Epsilon is the smallest distance or magnitude treated as non-zero.
const Epsilon = 1e-9

// Vec is a 2D vector or point in metres (positions), m/s (velocities) or
// m/s² (forces acting on unit mass).
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// V is shorthand for Vec{X: x, Y: y}.
func V(x, y float64) Vec { return Vec{X: x, Y: y} }

// FromPoint converts an orb point.
func FromPoint(p orb.Point) Vec { return Vec{X: p[0], Y: p[1]} }

// Point converts v to an orb point.
func (v Vec) Point() orb.Point { return orb.Point{v.X, v.Y} }

func (v Vec) Add(o Vec) Vec { return Vec{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec) Scale(s float64) Vec { return Vec{X: v.X * s, Y: v.Y * s} }
func (v Vec) Dot(o Vec) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec) Cross(o Vec) float64 { return v.X*o.Y - v.Y*o.X }
func (v Vec) LenSq() float64 { return v.X*v.X + v.Y*v.Y }
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64 { return math.Hypot(v.X-o.X, v.Y-o.Y) }
func (v Vec) Perp() Vec { return Vec{X: -v.Y, Y: v.X} }
func (v Vec) IsZero() bool { return v.LenSq() < Epsilon*Epsilon }
func (v Vec) Equal(o Vec) bool { return v.X == o.X && v.Y == o.Y }
func (v Vec) Bound() orb.Bound { return orb.Bound{Min: v.Point(), Max: v.Point()} }
func (v Vec) Lerp(o Vec, t float64) Vec {
	return Vec{X: v.X + (o.X-v.X)*t, Y: v.Y + (o.Y-v.Y)*t}
}

// IsNaN reports whether either component is NaN or infinite.
func (v Vec) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0)
}

// Normalize returns the unit vector of v, or the zero vector when v is
// shorter than Epsilon.
func (v Vec) Normalize() Vec {
	l := v.Len()
	if l < Epsilon {
		return Vec{}
	}
	return Vec{X: v.X / l, Y: v.Y / l}
}

// AngleBetween returns the unsigned angle between a and b in [0, π]. Zero
// vectors yield 0.
func AngleBetween(a, b Vec) float64 {
	la, lb := a.Len(), b.Len()
	if la < Epsilon || lb < Epsilon {
		return 0
	}
	c := a.Dot(b) / (la * lb)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// Centroid returns the arithmetic mean of pts, or the zero vector for an
// empty slice.
func Centroid(pts []Vec) Vec {
	if len(pts) == 0 {
		return Vec{}
	}
	var c Vec
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(pts)))
}
