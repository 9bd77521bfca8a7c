package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Segment is a straight line from A to B.
type Segment struct {
	A Vec `json:"a"`
	B Vec `json:"b"`
}

// Seg is shorthand for Segment{A: a, B: b}.
func Seg(a, b Vec) Segment { return Segment{A: a, B: b} }

// Length returns |B-A|.
func (s Segment) Length() float64 { return s.A.Dist(s.B) }

// Direction returns the unit vector from A to B.
func (s Segment) Direction() Vec { return s.B.Sub(s.A).Normalize() }

// Bound returns the axis-aligned bounding box of the segment.
func (s Segment) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(s.A.X, s.B.X), math.Min(s.A.Y, s.B.Y)},
		Max: orb.Point{math.Max(s.A.X, s.B.X), math.Max(s.A.Y, s.B.Y)},
	}
}

// Closest returns the point on the segment nearest to p.
func (s Segment) Closest(p Vec) Vec {
	d := s.B.Sub(s.A)
	l2 := d.LenSq()
	if l2 < Epsilon*Epsilon {
		return s.A
	}
	t := p.Sub(s.A).Dot(d) / l2
	switch {
	case t <= 0:
		return s.A
	case t >= 1:
		return s.B
	}
	return s.A.Add(d.Scale(t))
}

// DistanceTo returns the distance between p and the nearest point on s.
func (s Segment) DistanceTo(p Vec) float64 {
	return planar.DistanceFromSegment(s.A.Point(), s.B.Point(), p.Point())
}

// Sample returns points along the segment spaced by step, always including
// both end points. A non-positive step yields just the end points.
func (s Segment) Sample(step float64) []Vec {
	l := s.Length()
	if step <= 0 || l < Epsilon {
		if l < Epsilon {
			return []Vec{s.A}
		}
		return []Vec{s.A, s.B}
	}
	n := int(math.Ceil(l / step))
	out := make([]Vec, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) * step / l
		if t > 1 {
			t = 1
		}
		out = append(out, s.A.Lerp(s.B, t))
	}
	return out
}

func orient(a, b, c Vec) float64 { return b.Sub(a).Cross(c.Sub(a)) }

func onSegment(a, b, p Vec) bool {
	return math.Min(a.X, b.X)-Epsilon <= p.X && p.X <= math.Max(a.X, b.X)+Epsilon &&
		math.Min(a.Y, b.Y)-Epsilon <= p.Y && p.Y <= math.Max(a.Y, b.Y)+Epsilon
}

// Intersects reports whether s and o share at least one point, including
// touching end points and collinear overlap.
func (s Segment) Intersects(o Segment) bool {
	d1 := orient(o.A, o.B, s.A)
	d2 := orient(o.A, o.B, s.B)
	d3 := orient(s.A, s.B, o.A)
	d4 := orient(s.A, s.B, o.B)

	if ((d1 > Epsilon && d2 < -Epsilon) || (d1 < -Epsilon && d2 > Epsilon)) &&
		((d3 > Epsilon && d4 < -Epsilon) || (d3 < -Epsilon && d4 > Epsilon)) {
		return true
	}
	switch {
	case math.Abs(d1) <= Epsilon && onSegment(o.A, o.B, s.A):
		return true
	case math.Abs(d2) <= Epsilon && onSegment(o.A, o.B, s.B):
		return true
	case math.Abs(d3) <= Epsilon && onSegment(s.A, s.B, o.A):
		return true
	case math.Abs(d4) <= Epsilon && onSegment(s.A, s.B, o.B):
		return true
	}
	return false
}

// Intersection returns the crossing point of two non-parallel segments.
func (s Segment) Intersection(o Segment) (Vec, bool) {
	r := s.B.Sub(s.A)
	q := o.B.Sub(o.A)
	den := r.Cross(q)
	if math.Abs(den) < Epsilon {
		return Vec{}, false
	}
	t := o.A.Sub(s.A).Cross(q) / den
	u := o.A.Sub(s.A).Cross(r) / den
	if t < -Epsilon || t > 1+Epsilon || u < -Epsilon || u > 1+Epsilon {
		return Vec{}, false
	}
	return s.A.Add(r.Scale(t)), true
}

// Buffer returns the rectangle around s extended by d on every side.
func (s Segment) Buffer(d float64) orb.Polygon {
	dir := s.Direction()
	if dir.IsZero() {
		dir = V(1, 0)
	}
	n := dir.Perp().Scale(d)
	a := s.A.Sub(dir.Scale(d))
	b := s.B.Add(dir.Scale(d))
	ring := orb.Ring{
		a.Add(n).Point(),
		b.Add(n).Point(),
		b.Sub(n).Point(),
		a.Sub(n).Point(),
		a.Add(n).Point(),
	}
	return orb.Polygon{ring}
}

// CrossesPolygon reports whether s has any point inside poly or crosses one of
// its edges.
func (s Segment) CrossesPolygon(poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if planar.PolygonContains(poly, s.A.Point()) || planar.PolygonContains(poly, s.B.Point()) {
		return true
	}
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			if s.Intersects(Seg(FromPoint(ring[i-1]), FromPoint(ring[i]))) {
				return true
			}
		}
	}
	return false
}
