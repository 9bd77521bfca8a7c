package wayfinding

import (
	"math"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

// maxSearchDoublings bounds the escalating neighbour search.
const maxSearchDoublings = 32

// FollowPedestrian walks toward another pedestrian. With no leader, or once
// the leader has left the simulation, it follows whoever is nearest.
type FollowPedestrian struct {
	self   int
	leader int
	tuning Tuning

	following int
	last      geom.Vec
}

// NewFollowPedestrian creates a model for pedestrian self following leader.
// A leader of zero means the nearest other pedestrian.
func NewFollowPedestrian(self, leader int, t Tuning) *FollowPedestrian {
	return &FollowPedestrian{self: self, leader: leader, tuning: t}
}

func (*FollowPedestrian) variant() string { return "follow-pedestrian" }

// Following returns the id of the pedestrian followed last tick, or zero.
func (f *FollowPedestrian) Following() int { return f.following }

func (f *FollowPedestrian) step(env Env, in Input) geom.Vec {
	f.following = 0
	if env == nil {
		return geom.Vec{}
	}

	var (
		leader spatial.Agent
		ok     bool
	)
	if f.leader != 0 && f.leader != f.self {
		leader, ok = env.Pedestrian(f.leader)
	}
	if !ok {
		leader, ok = Nearest(env, in.Position, f.self, f.tuning.FollowSearchRadius)
	}
	if !ok {
		return geom.Vec{}
	}
	f.following = leader.ID

	toLeader := leader.Position.Sub(in.Position)
	if toLeader.Len() <= f.tuning.FollowStopDistance {
		return geom.Vec{}
	}
	return toLeader.Normalize()
}

// Nearest finds the pedestrian closest to pos other than self. The search box
// starts at radius and doubles until it holds a pedestrian within the box's
// inscribed circle, or until it has seen every pedestrian in the index.
func Nearest(env Env, pos geom.Vec, self int, radius float64) (spatial.Agent, bool) {
	total := env.CountPedestrians()
	if radius <= 0 {
		radius = 1
	}

	for i := 0; i < maxSearchDoublings; i++ {
		hits := env.QueryPedestrians(pos.Bound().Pad(radius))

		best, bestDist, found := spatial.Agent{}, math.Inf(1), false
		for _, a := range hits {
			if a.ID == self {
				continue
			}
			if d := pos.Dist(a.Position); d < bestDist {
				best, bestDist, found = a, d, true
			}
		}
		if found && bestDist <= radius {
			return best, true
		}
		if len(hits) >= total {
			// Every pedestrian has been seen, so the best hit is the global nearest.
			return best, found
		}
		radius *= 2
	}
	return spatial.Agent{}, false
}
