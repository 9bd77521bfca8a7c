package geom

import (
	"math"
	"testing"
)

func TestNormalizeZero(t *testing.T) {
	if n := V(0, 0).Normalize(); n != (Vec{}) {
		t.Fatalf("expected zero vector, got %v", n)
	}
	if n := V(3, 4).Normalize(); math.Abs(n.Len()-1) > 1e-12 {
		t.Fatalf("expected unit length, got %v", n.Len())
	}
}

func TestAngleBetween(t *testing.T) {
	if a := AngleBetween(V(1, 0), V(0, 2)); math.Abs(a-math.Pi/2) > 1e-12 {
		t.Fatalf("expected π/2, got %v", a)
	}
	if a := AngleBetween(V(1, 0), V(-1, 0)); math.Abs(a-math.Pi) > 1e-12 {
		t.Fatalf("expected π, got %v", a)
	}
	if a := AngleBetween(V(0, 0), V(1, 0)); a != 0 {
		t.Fatalf("expected 0 for zero vector, got %v", a)
	}
}

func TestCentroid(t *testing.T) {
	if c := Centroid(nil); c != (Vec{}) {
		t.Fatalf("expected zero centroid, got %v", c)
	}
	if c := Centroid([]Vec{V(0, 0), V(2, 0), V(1, 3)}); c != V(1, 1) {
		t.Fatalf("expected (1,1), got %v", c)
	}
}

func TestSegmentClosest(t *testing.T) {
	s := Seg(V(0, 0), V(10, 0))
	cases := []struct{ p, want Vec }{
		{V(-3, 2), V(0, 0)},
		{V(4, 5), V(4, 0)},
		{V(12, -1), V(10, 0)},
	}
	for _, c := range cases {
		if got := s.Closest(c.p); got != c.want {
			t.Fatalf("closest to %v: expected %v, got %v", c.p, c.want, got)
		}
	}
	if d := s.DistanceTo(V(4, 5)); math.Abs(d-5) > 1e-12 {
		t.Fatalf("expected distance 5, got %v", d)
	}
}

func TestSegmentIntersects(t *testing.T) {
	s := Seg(V(0, 0), V(2, 2))
	if !s.Intersects(Seg(V(0, 2), V(2, 0))) {
		t.Fatal("expected crossing segments to intersect")
	}
	if !s.Intersects(Seg(V(2, 2), V(3, 0))) {
		t.Fatal("expected touching end points to intersect")
	}
	if !s.Intersects(Seg(V(1, 1), V(3, 3))) {
		t.Fatal("expected collinear overlap to intersect")
	}
	if s.Intersects(Seg(V(0, 1), V(1, 2))) {
		t.Fatal("expected parallel segments not to intersect")
	}
	p, ok := s.Intersection(Seg(V(0, 2), V(2, 0)))
	if !ok || p.Dist(V(1, 1)) > 1e-12 {
		t.Fatalf("expected intersection at (1,1), got %v %v", p, ok)
	}
}

func TestSegmentSample(t *testing.T) {
	pts := Seg(V(0, 0), V(1, 0)).Sample(0.3)
	if len(pts) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(pts))
	}
	if pts[0] != V(0, 0) || pts[len(pts)-1] != V(1, 0) {
		t.Fatalf("expected samples to include both ends, got %v", pts)
	}
	if pts := Seg(V(1, 1), V(1, 1)).Sample(0.3); len(pts) != 1 {
		t.Fatalf("expected one sample for a degenerate segment, got %d", len(pts))
	}
}

func TestSegmentCrossesBuffer(t *testing.T) {
	wall := Seg(V(0, 0), V(4, 0))
	poly := wall.Buffer(0.5)
	if !Seg(V(2, 3), V(2, 0.2)).CrossesPolygon(poly) {
		t.Fatal("expected segment ending inside the buffer to cross it")
	}
	if !Seg(V(-2, 0), V(6, 0.1)).CrossesPolygon(poly) {
		t.Fatal("expected segment passing through the buffer to cross it")
	}
	if Seg(V(0, 1), V(4, 1)).CrossesPolygon(poly) {
		t.Fatal("expected segment outside the buffer not to cross it")
	}
}
