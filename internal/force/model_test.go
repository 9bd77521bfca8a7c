package force

import (
	"io"
	"log"
	"math"
	"testing"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newModel(t *testing.T, p Parameters) *Helbing {
	t.Helper()
	h, err := NewHelbing(p, quietLogger())
	if err != nil {
		t.Fatalf("expected valid parameters, got %v", err)
	}
	return h
}

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestIntrinsicForceScenario(t *testing.T) {
	p := DefaultParameters()
	p.A2, p.B2, p.Tau = 3, 0.2, 1
	h := newModel(t, p)

	// Leading pedestrian of three at (0,0), (0.5,0), (1,0) heading to (0,10).
	s := Subject{
		ID:           3,
		Position:     geom.V(1, 0),
		Direction:    geom.V(0, 1),
		NormalSpeed:  1.3,
		MaxSpeed:     1.3,
		AverageSpeed: 1.3,
	}
	f := h.Intrinsic(s)
	if !near(f.X, 0, 1e-3) || !near(f.Y, 1.299, 2e-3) {
		t.Fatalf("expected intrinsic force ≈ (0.000, 1.299), got %v", f)
	}
}

func TestIntrinsicForceZeroMaxSpeed(t *testing.T) {
	h := newModel(t, DefaultParameters())
	s := Subject{
		Velocity:    geom.V(2, -1),
		Direction:   geom.V(0, 1),
		NormalSpeed: 1.3,
		MaxSpeed:    0,
	}
	if f := h.Intrinsic(s); f != (geom.Vec{}) {
		t.Fatalf("expected zero intrinsic force, got %v", f)
	}
}

func TestIntrinsicForceDegenerateDirection(t *testing.T) {
	h := newModel(t, DefaultParameters())
	s := Subject{NormalSpeed: 1.3, MaxSpeed: 2}
	f := h.Intrinsic(s)
	if f.IsNaN() || f != (geom.Vec{}) {
		t.Fatalf("expected zero force for zero direction, got %v", f)
	}
}

func TestIntrinsicForceBrakesWithoutDirection(t *testing.T) {
	h := newModel(t, DefaultParameters())
	s := Subject{Velocity: geom.V(0, 1), NormalSpeed: 1.3, MaxSpeed: 2}
	f := h.Intrinsic(s)
	want := geom.V(0, -1/DefaultParameters().Tau)
	if !near(f.X, want.X, 1e-12) || !near(f.Y, want.Y, 1e-12) {
		t.Fatalf("expected braking force %v, got %v", want, f)
	}
}

func TestDesiredSpeedBlendsTowardMaximum(t *testing.T) {
	h := newModel(t, DefaultParameters())
	s := Subject{NormalSpeed: 1, MaxSpeed: 2}

	s.AverageSpeed = 1
	if got := h.DesiredSpeed(s); got != 1 {
		t.Fatalf("expected normal speed when on schedule, got %v", got)
	}
	s.AverageSpeed = 0
	if got := h.DesiredSpeed(s); got != 2 {
		t.Fatalf("expected maximum speed when stuck, got %v", got)
	}
	s.AverageSpeed = 0.5
	if got := h.DesiredSpeed(s); !near(got, 1.5, 1e-12) {
		t.Fatalf("expected blended speed 1.5, got %v", got)
	}
}

func TestPedestrianRepulsionAndCutoff(t *testing.T) {
	p := DefaultParameters()
	p.A1 = 0
	h := newModel(t, p)

	idx := spatial.New(p.MaxBoundaryDistance())
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(0, 0)},
		{ID: 2, Position: geom.V(0.5, 0)},
		{ID: 3, Position: geom.V(100, 0)},
	})

	f := h.PedestrianInteraction(Subject{ID: 1, Position: geom.V(0, 0)}, idx)
	if f.X >= 0 {
		t.Fatalf("expected push away from neighbour on +x, got %v", f)
	}
	want := p.A2 * math.Exp((2*p.Radius-0.5)/p.B2)
	if !near(-f.X, want, 1e-9) {
		t.Fatalf("expected magnitude %v, got %v", want, -f.X)
	}

	lonely := h.PedestrianInteraction(Subject{ID: 3, Position: geom.V(100, 0)}, idx)
	if lonely != (geom.Vec{}) {
		t.Fatalf("expected no force beyond cutoff, got %v", lonely)
	}
}

func TestAnisotropyStrongerAhead(t *testing.T) {
	p := DefaultParameters()
	p.A2 = 0.001 // leave only the anisotropic term above the cutoff
	h := newModel(t, p)

	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(0, 0)},
		{ID: 2, Position: geom.V(0, 0.6)},
	})

	ahead := h.PedestrianInteraction(Subject{ID: 1, Position: geom.V(0, 0), Velocity: geom.V(0, 1)}, idx)
	behind := h.PedestrianInteraction(Subject{ID: 1, Position: geom.V(0, 0), Velocity: geom.V(0, -1)}, idx)
	if ahead.Len() <= behind.Len() {
		t.Fatalf("expected stronger reaction ahead, got ahead=%v behind=%v", ahead.Len(), behind.Len())
	}
}

func TestOverlappingPedestriansDoNotProduceNaN(t *testing.T) {
	h := newModel(t, DefaultParameters())
	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(2, 2)},
		{ID: 2, Position: geom.V(2, 2)},
	})
	a := h.PedestrianInteraction(Subject{ID: 1, Position: geom.V(2, 2)}, idx)
	b := h.PedestrianInteraction(Subject{ID: 2, Position: geom.V(2, 2)}, idx)
	if a.IsNaN() || b.IsNaN() {
		t.Fatalf("expected finite forces, got %v and %v", a, b)
	}
	if a.X*b.X >= 0 {
		t.Fatalf("expected overlapping pedestrians to be pushed apart, got %v and %v", a, b)
	}
}

func TestBoundaryRepulsion(t *testing.T) {
	p := DefaultParameters()
	h := newModel(t, p)
	idx := spatial.New(p.MaxBoundaryDistance())
	idx.AddBoundaries(geom.Seg(geom.V(-5, 0), geom.V(5, 0)))

	f := h.BoundaryInteraction(Subject{Position: geom.V(0, 0.3)}, idx)
	if f.Y <= 0 || !near(f.X, 0, 1e-9) {
		t.Fatalf("expected push straight away from the wall, got %v", f)
	}
	far := h.BoundaryInteraction(Subject{Position: geom.V(0, 5)}, idx)
	if far != (geom.Vec{}) {
		t.Fatalf("expected no boundary force far away, got %v", far)
	}
}

func TestGroupForceZeroForSingletonOrStationary(t *testing.T) {
	h := newModel(t, DefaultParameters())
	single := Subject{Velocity: geom.V(1, 0), Group: GroupView{Size: 1}}
	if f := h.GroupInteraction(single); f != (geom.Vec{}) {
		t.Fatalf("expected zero group force for a single member, got %v", f)
	}
	still := Subject{Group: GroupView{Size: 2, Centroid: geom.V(5, 0), Mates: []geom.Vec{geom.V(10, 0)}}}
	if f := h.GroupInteraction(still); f != (geom.Vec{}) {
		t.Fatalf("expected zero group force for a stationary pedestrian, got %v", f)
	}
}

func TestGroupCohesionPullsTowardCentroid(t *testing.T) {
	h := newModel(t, DefaultParameters())
	// Two members 3 m apart walking side by side: beyond the attraction
	// threshold of 0.5 m and outside the comfort distance.
	positions := []geom.Vec{geom.V(0, 0), geom.V(3, 0)}
	centroid := geom.Centroid(positions)

	for step := 0; step < 5; step++ {
		for i, pos := range positions {
			mate := positions[1-i]
			s := Subject{
				Position: pos,
				Velocity: geom.V(0, 1),
				Group:    GroupView{Size: 2, Centroid: centroid, Mates: []geom.Vec{mate}},
			}
			f := h.GroupInteraction(s)
			if f.Dot(centroid.Sub(pos)) < 0 {
				t.Fatalf("expected non-negative centroid-ward force, got %v at %v", f, pos)
			}
		}
		positions[0] = positions[0].Add(geom.V(0.1, 0.1))
		positions[1] = positions[1].Add(geom.V(-0.1, 0.1))
		centroid = geom.Centroid(positions)
	}
}

func TestComputeSumsComponents(t *testing.T) {
	h := newModel(t, DefaultParameters())
	idx := spatial.New(h.Params().MaxBoundaryDistance())
	idx.AddBoundaries(geom.Seg(geom.V(-5, -0.4), geom.V(5, -0.4)))
	idx.Rebuild([]spatial.Agent{{ID: 1, Position: geom.V(0, 0)}, {ID: 2, Position: geom.V(0.7, 0)}})

	c := h.Compute(Subject{
		ID:           1,
		Position:     geom.V(0, 0),
		Velocity:     geom.V(0, 0.5),
		Direction:    geom.V(0, 1),
		NormalSpeed:  1.3,
		MaxSpeed:     1.6,
		AverageSpeed: 1.3,
	}, idx)

	ext := c.Pedestrian.Add(c.Boundary).Add(c.Group)
	if c.Extrinsic != ext {
		t.Fatalf("expected extrinsic %v, got %v", ext, c.Extrinsic)
	}
	if c.Total != ext.Add(c.Intrinsic) {
		t.Fatalf("expected total to be extrinsic + intrinsic, got %v", c.Total)
	}
}

func TestValidateRejectsBadParameters(t *testing.T) {
	p := DefaultParameters()
	p.Tau = 0
	if _, err := NewHelbing(p, quietLogger()); err == nil {
		t.Fatal("expected error for zero tau")
	}
}
