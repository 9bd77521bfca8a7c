package wayfinding

import (
	"fmt"
	"log"
	"math"

	"pedsim/internal/geom"
)

// FollowRoute walks the waypoints of a route in order.
//
// It is owned by one pedestrian and never shared, so it holds no locks. The
// route itself is shared and only read.
type FollowRoute struct {
	route  *Route
	tuning Tuning
	logger *log.Logger
	id     int // pedestrian id, for log lines

	inert bool
	dest  int // index into route.WayPoints, -1 when finished

	visited    []int // waypoint indices in the order they were passed
	visitedSet map[int]bool

	now       float64
	waiting   bool
	waitUntil float64

	needsOrientation   bool
	hasCourseDeviation bool
	passed             bool // a waypoint was passed since the last orientation
	lost               bool

	direction  geom.Vec
	target     geom.Vec
	hasTarget  bool
	targetTime float64
	targetFrom geom.Vec

	lastGood    geom.Vec
	hasLastGood bool

	lastDeviationCheck  float64
	lastOrientationTime float64

	startTime float64
	completed float64  // length of completed route segments
	segStart  geom.Vec // start of the segment toward dest
	average   float64
	hasAvg    bool
}

// NewFollowRoute creates an unassigned model for pedestrian id. A nil logger
// falls back to log.Default.
func NewFollowRoute(id int, t Tuning, logger *log.Logger) *FollowRoute {
	if logger == nil {
		logger = log.Default()
	}
	return &FollowRoute{id: id, tuning: t, logger: logger, inert: true, dest: -1, visitedSet: map[int]bool{}}
}

func (*FollowRoute) variant() string { return "follow-route" }

// Assign starts following r from pos at time now. Waypoints behind pos are
// marked visited. When the pedestrian cannot see its first waypoint, or two
// consecutive waypoints cannot see each other, Assign returns an error
// wrapping ErrRouteNotVisible if strict is set and logs it otherwise; the
// assignment is applied either way.
func (f *FollowRoute) Assign(r *Route, pos geom.Vec, now float64, env Env, strict bool) error {
	f.route = r
	f.visited = f.visited[:0]
	f.visitedSet = map[int]bool{}
	f.dest = -1
	f.waiting, f.lost, f.hasTarget, f.hasLastGood = false, false, false, false
	f.hasCourseDeviation, f.passed = false, false
	f.direction = geom.Vec{}
	f.now = now
	f.startTime, f.lastOrientationTime, f.lastDeviationCheck = now, now, now
	f.completed, f.segStart = 0, pos
	f.hasAvg = false

	if r == nil || r.Len() == 0 {
		f.inert = true
		return nil
	}
	f.inert = false

	along := r.Project(pos)
	for i, wp := range r.WayPoints {
		if wp.along < along {
			f.visit(i)
			continue
		}
		if f.dest < 0 {
			f.dest = i
		}
	}
	f.needsOrientation = f.dest >= 0

	if env == nil || f.dest < 0 {
		return nil
	}
	err := r.Validate(env)
	if err == nil && !env.Visible(pos, r.WayPoints[f.dest].Position) {
		err = fmt.Errorf("%w: pedestrian %d cannot see waypoint %d", ErrRouteNotVisible, f.id, r.WayPoints[f.dest].ID)
	}
	if err != nil {
		if strict {
			return err
		}
		f.logger.Printf("wayfinding: %v, proceeding", err)
	}
	return nil
}

func (f *FollowRoute) visit(i int) {
	if f.visitedSet[i] {
		return
	}
	f.visitedSet[i] = true
	f.visited = append(f.visited, i)
}

func (f *FollowRoute) nextUnvisited(from int) int {
	for i := from; i < f.route.Len(); i++ {
		if !f.visitedSet[i] {
			return i
		}
	}
	return -1
}

// Route returns the assigned route, or nil.
func (f *FollowRoute) Route() *Route { return f.route }

// Destination returns the waypoint currently walked to, or nil when the
// route is finished or absent.
func (f *FollowRoute) Destination() *WayPoint {
	if f.inert || f.dest < 0 {
		return nil
	}
	return f.route.WayPoints[f.dest]
}

// Visited returns the ids of passed waypoints in passing order.
func (f *FollowRoute) Visited() []int {
	out := make([]int, len(f.visited))
	for i, idx := range f.visited {
		out[i] = f.route.WayPoints[idx].ID
	}
	return out
}

// Finished reports whether every waypoint has been visited or no route is
// assigned.
func (f *FollowRoute) Finished() bool { return f.inert || f.dest < 0 }

// Waiting reports whether a waiting period is running at time now.
func (f *FollowRoute) Waiting(now float64) bool { return f.waiting && now < f.waitUntil }

// WaitUntil returns the end of the current waiting period.
func (f *FollowRoute) WaitUntil() float64 { return f.waitUntil }

// Lost reports whether the last re-orientation found no target.
func (f *FollowRoute) Lost() bool { return f.lost }

// Target returns the point the pedestrian last oriented toward.
func (f *FollowRoute) Target() (geom.Vec, bool) { return f.target, f.hasTarget }

// Direction returns the held walking direction.
func (f *FollowRoute) Direction() geom.Vec { return f.direction }

// NeedsOrientation reports whether the next tick re-orients.
func (f *FollowRoute) NeedsOrientation() bool { return f.needsOrientation }

// HasCourseDeviation reports whether the held direction drifted from the target.
func (f *FollowRoute) HasCourseDeviation() bool { return f.hasCourseDeviation }

// AverageVelocityOnRoute returns the average velocity along the route since
// assignment, or 0 before any time has passed.
func (f *FollowRoute) AverageVelocityOnRoute() float64 {
	v, _ := f.averageVelocity()
	return v
}

func (f *FollowRoute) averageVelocity() (float64, bool) { return f.average, f.hasAvg }

func (f *FollowRoute) step(env Env, in Input) geom.Vec {
	f.now = in.Now
	if f.inert || f.dest < 0 {
		return geom.Vec{}
	}

	if f.waiting {
		if in.Now < f.waitUntil {
			return geom.Vec{}
		}
		f.waiting = false
		f.rederive(in.Position)
		if f.dest < 0 {
			return geom.Vec{}
		}
	}

	f.trackProgress(in)

	if f.hasAvg && in.Now-f.startTime >= f.tuning.SlowProgressDelay &&
		in.Now-f.lastOrientationTime >= f.tuning.OrientationInterval &&
		f.average < f.tuning.SlowProgressFactor*in.NormalSpeed {
		f.needsOrientation = true
	}

	if f.needsOrientation || f.hasCourseDeviation || f.passed {
		f.orient(env, in.Position, in.Now)
	}

	if f.hasTarget && in.Now-f.lastDeviationCheck >= f.tuning.DeviationCheckInterval {
		f.lastDeviationCheck = in.Now
		required := f.target.Sub(in.Position)
		if !required.IsZero() && geom.AngleBetween(f.direction, required) > f.tuning.CourseDeviationThreshold {
			f.hasCourseDeviation = true
		}
	}
	return f.direction
}

// rederive marks waypoints that fell behind the pedestrian while it waited
// and forces a fresh orientation.
func (f *FollowRoute) rederive(pos geom.Vec) {
	along := f.route.Project(pos)
	for f.dest >= 0 && f.route.WayPoints[f.dest].along < along {
		f.completeSegment(f.dest)
		f.dest = f.nextUnvisited(f.dest + 1)
	}
	f.needsOrientation = true
}

func (f *FollowRoute) completeSegment(i int) {
	wp := f.route.WayPoints[i]
	f.visit(i)
	f.completed += f.segStart.Dist(wp.Position)
	f.segStart = wp.Position
}

// trackProgress updates the average velocity on route: completed segment
// lengths plus the signed projection onto the current segment, over the time
// since assignment.
func (f *FollowRoute) trackProgress(in Input) {
	elapsed := in.Now - f.startTime
	if elapsed <= geom.Epsilon {
		return
	}
	progress := f.completed
	if f.dest >= 0 {
		dir := f.route.WayPoints[f.dest].Position.Sub(f.segStart).Normalize()
		progress += in.Position.Sub(f.segStart).Dot(dir)
	}
	f.average = progress / elapsed
	f.hasAvg = true
}

func (f *FollowRoute) updateSegment(from, to geom.Vec) {
	if f.inert || f.dest < 0 || f.waiting {
		return
	}
	wp := f.route.WayPoints[f.dest]
	if !passes(wp, geom.Seg(from, to)) {
		return
	}
	f.completeSegment(f.dest)
	f.dest = f.nextUnvisited(f.dest + 1)
	f.passed = true
	if wp.WaitingPeriod > 0 {
		f.waiting = true
		f.waitUntil = f.now + wp.WaitingPeriod
	}
}

// passes tests the displacement against the passing area, else the target
// line, else a box around the waypoint grown by its width.
func passes(wp *WayPoint, move geom.Segment) bool {
	if len(wp.passingArea) > 0 {
		return move.CrossesPolygon(wp.passingArea)
	}
	if wp.targetLine != nil {
		return move.Intersects(*wp.targetLine)
	}
	width := math.Max(wp.Width, geom.Epsilon)
	return wp.Position.Bound().Pad(width).Contains(move.B.Point())
}

// orient resolves a new target for the destination waypoint by trying, in
// order: the previous target, the nearest point of the target line, the
// closest visible sample of the target line, the best visible sample of the
// connection line, and the last place orientation succeeded.
func (f *FollowRoute) orient(env Env, pos geom.Vec, now float64) {
	wp := f.route.WayPoints[f.dest]
	visible := func(p geom.Vec) bool { return env == nil || env.Visible(pos, p) }

	target, ok, reused := geom.Vec{}, false, false
	if f.hasTarget && !f.passed && !f.hasCourseDeviation &&
		pos.Dist(f.targetFrom) <= f.tuning.HysteresisDistance &&
		now-f.targetTime <= f.tuning.HysteresisTime {
		target, ok, reused = f.target, true, true
	}

	line, hasLine := wp.TargetLine()
	if !hasLine {
		line = geom.Seg(wp.Position, wp.Position)
	}
	step := wp.Width / math.Max(f.tuning.SamplingDivisor, 1)

	if !ok {
		if p := line.Closest(pos); visible(p) {
			target, ok = p, true
		}
	}
	if !ok {
		best := math.Inf(1)
		for _, p := range line.Sample(step) {
			if d := pos.Dist(p); d < best && visible(p) {
				best, target, ok = d, p, true
			}
		}
	}
	if !ok {
		if conn, has := wp.Connection(); has {
			best := math.Inf(1)
			for _, p := range conn.Sample(step) {
				// Path length through p favours samples nearer the waypoint.
				if d := pos.Dist(p) + p.Dist(wp.Position); d < best && visible(p) {
					best, target, ok = d, p, true
				}
			}
		}
	}
	fromLastGood := false
	if !ok && f.hasLastGood && pos.Dist(f.lastGood) > geom.Epsilon && visible(f.lastGood) {
		target, ok, fromLastGood = f.lastGood, true, true
	}

	f.needsOrientation, f.hasCourseDeviation, f.passed = false, false, false
	f.lastOrientationTime = now
	if !ok {
		if !f.lost {
			f.logger.Printf("wayfinding: pedestrian %d lost on the way to waypoint %d at %v", f.id, wp.ID, pos)
		}
		f.lost = true
		f.needsOrientation = true
		f.direction = geom.Vec{}
		return
	}

	f.lost = false
	if !reused {
		f.target, f.hasTarget = target, true
		f.targetTime, f.targetFrom = now, pos
	}
	if !fromLastGood {
		f.lastGood, f.hasLastGood = pos, true
	}
	dir := target.Sub(pos).Normalize()
	if dir.IsZero() {
		dir = wp.Position.Sub(pos).Normalize()
	}
	f.direction = dir
}
