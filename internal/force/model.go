// Package force implements the social force model: an intrinsic drive toward
// the desired velocity plus exponential repulsion from other pedestrians and
// boundaries, and a cohesion force between members of the same group.
//
// The model is stateless. Compute reads the pedestrian's own state from the
// Subject and its neighbours from the spatial index snapshot of the current
// tick, so evaluating it in any order yields the same result.
package force

import (
	"log"
	"math"

	"github.com/paulmach/orb"

	"pedsim/internal/geom"
	"pedsim/internal/spatial"
)

// Neighborhood is the part of the spatial index the model queries.
type Neighborhood interface {
	QueryPedestrians(box orb.Bound) []spatial.Agent
	QueryBoundaries(box orb.Bound) []spatial.Boundary
}

// Subject is the state of the pedestrian whose forces are computed.
type Subject struct {
	ID       int
	GroupID  int
	Position geom.Vec
	Velocity geom.Vec

	// Direction is the unit vector the wayfinding model wants to walk in, or
	// zero when the pedestrian has nowhere to go.
	Direction    geom.Vec
	NormalSpeed  float64
	MaxSpeed     float64
	AverageSpeed float64 // average velocity along the route so far

	Group GroupView
}

// GroupView is what a pedestrian knows about its own group this tick.
type GroupView struct {
	Size     int
	Centroid geom.Vec
	Mates    []geom.Vec // positions of the other members
}

// Components holds every force term computed for one pedestrian in one tick.
type Components struct {
	Intrinsic  geom.Vec `json:"intrinsic"`
	Pedestrian geom.Vec `json:"pedestrian"`
	Boundary   geom.Vec `json:"boundary"`
	Group      geom.Vec `json:"group"`
	Extrinsic  geom.Vec `json:"extrinsic"`
	Total      geom.Vec `json:"total"`
}

// Model computes the forces acting on a pedestrian.
type Model interface {
	Compute(s Subject, n Neighborhood) Components
	Params() Parameters
}

// Helbing is the circular-specification social force model with an optional
// anisotropic term and a Moussaïd-style group force.
type Helbing struct {
	p        Parameters
	maxPed   float64
	maxBound float64
	logger   *log.Logger
}

// NewHelbing validates p and precomputes the interaction cutoffs. A nil
// logger falls back to log.Default.
func NewHelbing(p Parameters, logger *log.Logger) (*Helbing, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Helbing{
		p:        p,
		maxPed:   p.MaxPedestrianDistance(),
		maxBound: p.MaxBoundaryDistance(),
		logger:   logger,
	}, nil
}

// Params returns the parameter set the model was built with.
func (h *Helbing) Params() Parameters { return h.p }

// Compute returns all force components for s. Degenerate inputs never panic:
// NaN terms are logged and replaced by zero.
func (h *Helbing) Compute(s Subject, n Neighborhood) Components {
	var c Components
	c.Intrinsic = h.sanitize(s.ID, "intrinsic", h.Intrinsic(s))
	c.Pedestrian = h.sanitize(s.ID, "pedestrian", h.PedestrianInteraction(s, n))
	c.Boundary = h.sanitize(s.ID, "boundary", h.BoundaryInteraction(s, n))
	c.Group = h.sanitize(s.ID, "group", h.GroupInteraction(s))
	c.Extrinsic = c.Pedestrian.Add(c.Boundary).Add(c.Group)
	c.Total = c.Extrinsic.Add(c.Intrinsic)
	return c
}

// DesiredSpeed blends normal and maximum desired speed by how far the
// pedestrian lags behind its normal speed on the route.
func (h *Helbing) DesiredSpeed(s Subject) float64 {
	maxSpeed := math.Max(s.MaxSpeed, 0)
	normal := math.Min(math.Max(s.NormalSpeed, 0), maxSpeed)
	if normal <= 0 {
		return 0
	}
	impatience := 1 - s.AverageSpeed/normal
	if math.IsNaN(impatience) {
		impatience = 0
	}
	impatience = math.Min(math.Max(impatience, 0), 1)
	return (1-impatience)*normal + impatience*maxSpeed
}

// Intrinsic is the drive toward the desired velocity, relaxed over Tau. A
// pedestrian with nowhere to go relaxes toward standing still; one whose
// maximum desired speed is zero feels no drive at all.
func (h *Helbing) Intrinsic(s Subject) geom.Vec {
	if s.MaxSpeed <= 0 {
		return geom.Vec{}
	}
	dir := s.Direction.Normalize()
	speed := h.DesiredSpeed(s)
	if dir.IsZero() || speed <= 0 {
		return s.Velocity.Scale(-1 / h.p.Tau)
	}
	return dir.Scale(speed).Sub(s.Velocity).Scale(1 / h.p.Tau)
}

// heading is the direction the pedestrian faces: its velocity if moving,
// otherwise where it wants to go.
func heading(s Subject) geom.Vec {
	if e := s.Velocity.Normalize(); !e.IsZero() {
		return e
	}
	return s.Direction.Normalize()
}

// PedestrianInteraction sums the repulsion from every neighbour within the
// cutoff distance.
func (h *Helbing) PedestrianInteraction(s Subject, n Neighborhood) geom.Vec {
	if n == nil {
		return geom.Vec{}
	}
	box := s.Position.Bound().Pad(h.maxPed)
	e := heading(s)
	contact := 2 * h.p.Radius

	var f geom.Vec
	for _, other := range n.QueryPedestrians(box) {
		if other.ID == s.ID {
			continue
		}
		diff := s.Position.Sub(other.Position)
		d := diff.Len()
		if d > h.maxPed {
			continue
		}
		var nij geom.Vec
		if d < geom.Epsilon {
			h.logger.Printf("force: pedestrian %d overlaps pedestrian %d, using minimum distance", s.ID, other.ID)
			d = geom.Epsilon
			nij = geom.V(1, 0)
			if s.ID < other.ID {
				nij = geom.V(-1, 0)
			}
		} else {
			nij = diff.Scale(1 / d)
		}

		f = f.Add(nij.Scale(h.p.A2 * math.Exp((contact-d)/h.p.B2)))
		if h.p.A1 != 0 {
			// cos φ between heading and the bearing toward the other pedestrian.
			cosPhi := -nij.Dot(e)
			w := h.p.Lambda + (1-h.p.Lambda)*(1+cosPhi)/2
			f = f.Add(nij.Scale(h.p.A1 * math.Exp((contact-d)/h.p.B1) * w))
		}
	}
	return f
}

// BoundaryInteraction sums the repulsion from the nearest point of every
// boundary segment within range.
func (h *Helbing) BoundaryInteraction(s Subject, n Neighborhood) geom.Vec {
	if n == nil {
		return geom.Vec{}
	}
	var f geom.Vec
	for _, b := range n.QueryBoundaries(s.Position.Bound()) {
		nearest := b.Segment.Closest(s.Position)
		diff := s.Position.Sub(nearest)
		d := diff.Len()
		if d > h.maxBound {
			continue
		}
		var niw geom.Vec
		if d < geom.Epsilon {
			h.logger.Printf("force: pedestrian %d touches boundary %v, using minimum distance", s.ID, b.Segment)
			d = geom.Epsilon
			niw = b.Segment.Direction().Perp()
			if niw.IsZero() {
				niw = geom.V(1, 0)
			}
		} else {
			niw = diff.Scale(1 / d)
		}
		f = f.Add(niw.Scale(h.p.BoundaryA * math.Exp((h.p.Radius-d)/h.p.BoundaryB)))
	}
	return f
}

// GroupInteraction is zero for a lone or stationary pedestrian. Otherwise it
// combines the field-of-view penalty, attraction toward the centroid and
// repulsion from group mates inside the comfort distance.
func (h *Helbing) GroupInteraction(s Subject) geom.Vec {
	if s.Group.Size < 2 || s.Velocity.IsZero() {
		return geom.Vec{}
	}
	gp := h.p.Group
	var f geom.Vec

	toCentroid := s.Group.Centroid.Sub(s.Position)
	dist := toCentroid.Len()

	if dist > geom.Epsilon {
		if alpha := geom.AngleBetween(s.Velocity, toCentroid); alpha > gp.FieldOfView {
			f = f.Add(s.Velocity.Scale(-gp.Beta1 * (alpha - gp.FieldOfView)))
		}
		if threshold := float64(s.Group.Size-1) / 2; dist > threshold {
			f = f.Add(toCentroid.Scale(gp.Beta2 / dist))
		}
	}

	for _, mate := range s.Group.Mates {
		away := s.Position.Sub(mate)
		d := away.Len()
		if d >= gp.ComfortDistance {
			continue
		}
		if d < geom.Epsilon {
			h.logger.Printf("force: pedestrian %d shares its position with a group mate", s.ID)
			continue
		}
		f = f.Add(away.Scale(gp.Beta3 / d))
	}
	return f
}

func (h *Helbing) sanitize(id int, term string, v geom.Vec) geom.Vec {
	if v.IsNaN() {
		h.logger.Printf("force: pedestrian %d produced invalid %s force %v, substituting zero", id, term, v)
		return geom.Vec{}
	}
	return v
}
