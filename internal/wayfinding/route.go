package wayfinding

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

// WayPoint is an ordered target on a route. The geometry fields are derived
// by Route.DeriveGeometry once the boundaries are known; until then passing
// falls back to a box around Position.
type WayPoint struct {
	ID            int      `json:"id"`
	Position      geom.Vec `json:"position"`
	Width         float64  `json:"width"`          // metres
	WaitingPeriod float64  `json:"waiting_period"` // seconds

	along       float64
	targetLine  *geom.Segment
	passingArea orb.Polygon
	connection  *geom.Segment
}

// Along is the distance from the start of the route to the waypoint.
func (w *WayPoint) Along() float64 { return w.along }

// TargetLine is the line through the waypoint perpendicular to the route,
// clipped at the nearest boundaries.
func (w *WayPoint) TargetLine() (geom.Segment, bool) {
	if w.targetLine == nil {
		return geom.Segment{}, false
	}
	return *w.targetLine, true
}

// PassingArea is the target line buffered into a polygon.
func (w *WayPoint) PassingArea() orb.Polygon { return w.passingArea }

// Connection is the line from the preceding waypoint to this one. The first
// waypoint has none.
func (w *WayPoint) Connection() (geom.Segment, bool) {
	if w.connection == nil {
		return geom.Segment{}, false
	}
	return *w.connection, true
}

// Route is an ordered sequence of waypoints shared by every pedestrian of a
// crowd. After DeriveGeometry it is read-only and safe for concurrent use.
type Route struct {
	ID        int
	WayPoints []*WayPoint

	path orb.LineString

	boundOnce sync.Once
	bound     orb.Bound

	geomMu  sync.Mutex
	derived bool
}

// NewRoute copies wps into a route. Consecutive waypoints must be distinct so
// that the position along the route strictly increases.
func NewRoute(id int, wps []WayPoint) (*Route, error) {
	r := &Route{ID: id, WayPoints: make([]*WayPoint, 0, len(wps))}
	var along float64
	for i := range wps {
		wp := wps[i]
		if wp.Position.IsNaN() {
			return nil, fmt.Errorf("route %d: waypoint %d has invalid position", id, wp.ID)
		}
		if wp.Width < 0 || wp.WaitingPeriod < 0 {
			return nil, fmt.Errorf("route %d: waypoint %d has negative width or waiting period", id, wp.ID)
		}
		if i > 0 {
			prev := r.WayPoints[i-1]
			step := prev.Position.Dist(wp.Position)
			if step < geom.Epsilon {
				return nil, fmt.Errorf("route %d: waypoints %d and %d coincide", id, prev.ID, wp.ID)
			}
			along += step
			conn := geom.Seg(prev.Position, wp.Position)
			wp.connection = &conn
		}
		wp.along = along
		r.WayPoints = append(r.WayPoints, &wp)
		r.path = append(r.path, wp.Position.Point())
	}
	return r, nil
}

// Len returns the number of waypoints.
func (r *Route) Len() int { return len(r.WayPoints) }

// Length returns the path length from the first to the last waypoint.
func (r *Route) Length() float64 {
	if len(r.WayPoints) == 0 {
		return 0
	}
	return r.WayPoints[len(r.WayPoints)-1].along
}

// Bound returns the bounding box of all waypoints, computed on first use.
func (r *Route) Bound() orb.Bound {
	r.boundOnce.Do(func() {
		if len(r.path) > 0 {
			r.bound = r.path.Bound()
		}
	})
	return r.bound
}

// Project returns the distance along the route of the point on the path
// nearest to p. Points before the start project to 0.
func (r *Route) Project(p geom.Vec) float64 {
	if len(r.WayPoints) < 2 {
		return 0
	}
	best, bestAlong := math.Inf(1), 0.0
	for i := 1; i < len(r.WayPoints); i++ {
		a, b := r.WayPoints[i-1], r.WayPoints[i]
		seg := geom.Seg(a.Position, b.Position)
		c := seg.Closest(p)
		if d := c.Dist(p); d < best {
			best = d
			bestAlong = a.along + a.Position.Dist(c)
		}
	}
	return bestAlong
}

// tangent returns the route direction at waypoint i: the bisector of the
// incoming and outgoing legs.
func (r *Route) tangent(i int) geom.Vec {
	var t geom.Vec
	wp := r.WayPoints[i]
	if i > 0 {
		t = t.Add(wp.Position.Sub(r.WayPoints[i-1].Position).Normalize())
	}
	if i < len(r.WayPoints)-1 {
		t = t.Add(r.WayPoints[i+1].Position.Sub(wp.Position).Normalize())
	}
	if t = t.Normalize(); t.IsZero() {
		if i > 0 {
			return wp.Position.Sub(r.WayPoints[i-1].Position).Normalize()
		}
		return geom.V(0, 1)
	}
	return t
}

// Obstacles is the boundary lookup used to clip target lines.
type Obstacles interface {
	Visible(a, b geom.Vec) bool
	QueryBoundaries(box orb.Bound) []spatial.Boundary
}

// DeriveGeometry builds target lines and passing areas. It runs once per
// route; later calls are no-ops.
func (r *Route) DeriveGeometry(obs Obstacles, t Tuning) {
	r.geomMu.Lock()
	defer r.geomMu.Unlock()
	if r.derived {
		return
	}
	for i, wp := range r.WayPoints {
		half := wp.Width / 2
		if half < geom.Epsilon {
			continue
		}
		side := r.tangent(i).Perp()
		a := clip(obs, wp.Position, wp.Position.Add(side.Scale(half)), t.TargetClearance)
		b := clip(obs, wp.Position, wp.Position.Sub(side.Scale(half)), t.TargetClearance)
		line := geom.Seg(a, b)
		wp.targetLine = &line
		wp.passingArea = line.Buffer(t.PassingAreaBuffer)
	}
	r.derived = true
}

// Derived reports whether DeriveGeometry has run.
func (r *Route) Derived() bool {
	r.geomMu.Lock()
	defer r.geomMu.Unlock()
	return r.derived
}

// clip shortens from→to at the first boundary crossing, keeping clearance
// metres off the wall.
func clip(obs Obstacles, from, to geom.Vec, clearance float64) geom.Vec {
	if obs == nil {
		return to
	}
	ray := geom.Seg(from, to)
	best, hit := ray.Length(), false
	for _, b := range obs.QueryBoundaries(ray.Bound()) {
		if p, ok := ray.Intersection(b.Segment); ok {
			if d := from.Dist(p); d <= best {
				best, hit = d, true
			}
		}
	}
	if !hit {
		return to
	}
	return from.Add(ray.Direction().Scale(math.Max(best-clearance, 0)))
}

// Validate checks that each waypoint can be seen from its predecessor.
func (r *Route) Validate(obs Obstacles) error {
	for i := 1; i < len(r.WayPoints); i++ {
		a, b := r.WayPoints[i-1], r.WayPoints[i]
		if !obs.Visible(a.Position, b.Position) {
			return fmt.Errorf("%w: route %d waypoint %d cannot see waypoint %d", ErrRouteNotVisible, r.ID, a.ID, b.ID)
		}
	}
	return nil
}
