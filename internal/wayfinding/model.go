// Package wayfinding decides which way a pedestrian wants to walk.
//
// A Model is one of two variants: *FollowRoute walks an ordered list of
// waypoints, *FollowPedestrian trails another pedestrian. The package-level
// functions switch on the variant; nothing else needs to know which one a
// pedestrian carries.
package wayfinding

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

// ErrRouteNotVisible is returned when a pedestrian cannot see its first
// waypoint or two consecutive waypoints have no line of sight.
var ErrRouteNotVisible = errors.New("route not visible")

// Env is the view of the spatial index a wayfinding model needs.
type Env interface {
	Obstacles
	QueryPedestrians(box orb.Bound) []spatial.Agent
	Pedestrian(id int) (spatial.Agent, bool)
	CountPedestrians() int
}

// Tuning holds the wayfinding constants.
type Tuning struct {
	SamplingDivisor          float64 `json:"sampling_divisor"`           // target line samples per waypoint width
	CourseDeviationThreshold float64 `json:"course_deviation_threshold"` // rad
	DeviationCheckInterval   float64 `json:"deviation_check_interval"`   // s
	HysteresisDistance       float64 `json:"hysteresis_distance"`        // m
	HysteresisTime           float64 `json:"hysteresis_time"`            // s
	PassingAreaBuffer        float64 `json:"passing_area_buffer"`        // m
	TargetClearance          float64 `json:"target_clearance"`           // m kept between target line ends and walls
	SlowProgressFactor       float64 `json:"slow_progress_factor"`       // fraction of normal speed
	SlowProgressDelay        float64 `json:"slow_progress_delay"`        // s after route start before the check applies
	OrientationInterval      float64 `json:"orientation_interval"`       // s between slow-progress re-orientations
	FollowStopDistance       float64 `json:"follow_stop_distance"`       // m
	FollowSearchRadius       float64 `json:"follow_search_radius"`       // m, first box of the escalating search
}

// DefaultTuning returns the tuning used unless configured otherwise.
func DefaultTuning() Tuning {
	return Tuning{
		SamplingDivisor:          10,
		CourseDeviationThreshold: math.Pi / 180,
		DeviationCheckInterval:   0.5,
		HysteresisDistance:       0.3,
		HysteresisTime:           1,
		PassingAreaBuffer:        0.5,
		TargetClearance:          0.05,
		SlowProgressFactor:       0.5,
		SlowProgressDelay:        5,
		OrientationInterval:      2,
		FollowStopDistance:       0.8,
		FollowSearchRadius:       2,
	}
}

// Input is the per-tick state handed to a model.
type Input struct {
	Now         float64 // simulation time, s
	Position    geom.Vec
	Velocity    geom.Vec
	NormalSpeed float64
}

// Model is implemented by *FollowRoute and *FollowPedestrian only.
type Model interface {
	variant() string
}

// Kind names the variant of m, or "none" for nil.
func Kind(m Model) string {
	if m == nil {
		return "none"
	}
	return m.variant()
}

// DesiredDirection returns the unit vector m wants to walk in this tick, or
// zero when it is waiting, finished, lost or inert.
func DesiredDirection(m Model, env Env, in Input) geom.Vec {
	switch m := m.(type) {
	case *FollowRoute:
		return m.step(env, in)
	case *FollowPedestrian:
		return m.step(env, in)
	default:
		return geom.Vec{}
	}
}

// UpdateSegment reports the displacement a pedestrian is about to commit.
func UpdateSegment(m Model, from, to geom.Vec) {
	switch m := m.(type) {
	case *FollowRoute:
		m.updateSegment(from, to)
	case *FollowPedestrian:
		m.last = to
	}
}

// AverageSpeed returns the average velocity along the route, or fallback
// for models that do not track one.
func AverageSpeed(m Model, fallback float64) float64 {
	if fr, ok := m.(*FollowRoute); ok {
		if v, ok := fr.averageVelocity(); ok {
			return v
		}
	}
	return fallback
}

// Finished reports whether m has nothing left to do.
func Finished(m Model) bool {
	switch m := m.(type) {
	case *FollowRoute:
		return m.Finished()
	case *FollowPedestrian:
		return false
	default:
		return true
	}
}
