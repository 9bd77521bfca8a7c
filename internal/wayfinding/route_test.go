package wayfinding

import (
	"math"
	"testing"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

func TestTargetLineClippedAtWalls(t *testing.T) {
	idx := spatial.New(0)
	idx.AddBoundaries(
		geom.Seg(geom.V(-1, -10), geom.V(-1, 10)),
		geom.Seg(geom.V(1, -10), geom.V(1, 10)),
	)
	r := mustRoute(t, wp(1, 0, 0, 1, 0), wp(2, 0, 5, 4, 0))
	tuning := DefaultTuning()
	r.DeriveGeometry(idx, tuning)

	line, ok := r.WayPoints[1].TargetLine()
	if !ok {
		t.Fatal("expected a target line for waypoint 2")
	}
	for _, end := range []geom.Vec{line.A, line.B} {
		if math.Abs(math.Abs(end.X)-(1-tuning.TargetClearance)) > 1e-9 {
			t.Fatalf("expected end point clipped short of the wall, got %v", end)
		}
		if math.Abs(end.Y-5) > 1e-9 {
			t.Fatalf("expected target line through the waypoint, got %v", end)
		}
	}
	if len(r.WayPoints[1].PassingArea()) == 0 {
		t.Fatal("expected a passing area")
	}
	if !r.Derived() {
		t.Fatal("expected route to be derived")
	}

	// A second derivation against a different field changes nothing.
	r.DeriveGeometry(spatial.New(0), tuning)
	if again, _ := r.WayPoints[1].TargetLine(); again != line {
		t.Fatalf("expected geometry to be derived once, got %v then %v", line, again)
	}
}

func TestUnclippedTargetLineKeepsFullWidth(t *testing.T) {
	r := mustRoute(t, wp(1, 0, 0, 2, 0), wp(2, 10, 0, 2, 0))
	r.DeriveGeometry(spatial.New(0), DefaultTuning())
	line, _ := r.WayPoints[1].TargetLine()
	if got := line.Length(); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected target line length 2, got %v", got)
	}
	if _, ok := r.WayPoints[0].Connection(); ok {
		t.Fatal("expected first waypoint to have no connection line")
	}
	if conn, ok := r.WayPoints[1].Connection(); !ok || conn.Length() != 10 {
		t.Fatalf("expected connection of length 10, got %v", conn)
	}
}

func TestProjectOntoRoute(t *testing.T) {
	r := mustRoute(t, wp(1, 0, 0, 1, 0), wp(2, 10, 0, 1, 0), wp(3, 10, 10, 1, 0))
	cases := []struct {
		p    geom.Vec
		want float64
	}{
		{geom.V(-5, 0), 0},
		{geom.V(4, 1), 4},
		{geom.V(11, 6), 16},
		{geom.V(10, 20), 20},
	}
	for _, c := range cases {
		if got := r.Project(c.p); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("expected projection of %v to be %v, got %v", c.p, c.want, got)
		}
	}
}
