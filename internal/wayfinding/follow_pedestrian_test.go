package wayfinding

import (
	"testing"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

func TestNearestEscalatesSearch(t *testing.T) {
	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(0, 0)},
		{ID: 2, Position: geom.V(40, 0)},
		{ID: 3, Position: geom.V(-60, 0)},
	})

	a, ok := Nearest(idx, geom.V(0, 0), 1, 1)
	if !ok {
		t.Fatal("expected a pedestrian to be found")
	}
	if a.ID != 2 {
		t.Fatalf("expected nearest pedestrian 2, got %d", a.ID)
	}
}

func TestNearestAloneFindsNobody(t *testing.T) {
	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{{ID: 1, Position: geom.V(3, 3)}})
	if _, ok := Nearest(idx, geom.V(3, 3), 1, 1); ok {
		t.Fatal("expected no other pedestrian to be found")
	}
}

func TestFollowPedestrianFallsBackToNearest(t *testing.T) {
	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(0, 0)},
		{ID: 2, Position: geom.V(0, 5)},
		{ID: 3, Position: geom.V(8, 0)},
	})

	f := NewFollowPedestrian(1, 3, DefaultTuning())
	d := DesiredDirection(f, idx, Input{Position: geom.V(0, 0)})
	if f.Following() != 3 || d != geom.V(1, 0) {
		t.Fatalf("expected to walk toward leader 3, got %d %v", f.Following(), d)
	}

	// Leader 9 is not in the index, so the nearest pedestrian is followed.
	f = NewFollowPedestrian(1, 9, DefaultTuning())
	d = DesiredDirection(f, idx, Input{Position: geom.V(0, 0)})
	if f.Following() != 2 || d != geom.V(0, 1) {
		t.Fatalf("expected to fall back to pedestrian 2, got %d %v", f.Following(), d)
	}
	if Kind(f) != "follow-pedestrian" || Finished(f) {
		t.Fatal("expected an active follow-pedestrian model")
	}
}

func TestFollowPedestrianStopsClose(t *testing.T) {
	idx := spatial.New(0)
	idx.Rebuild([]spatial.Agent{
		{ID: 1, Position: geom.V(0, 0)},
		{ID: 2, Position: geom.V(0.5, 0)},
	})
	f := NewFollowPedestrian(1, 2, DefaultTuning())
	if d := DesiredDirection(f, idx, Input{Position: geom.V(0, 0)}); d != (geom.Vec{}) {
		t.Fatalf("expected to stop within the follow distance, got %v", d)
	}
}
