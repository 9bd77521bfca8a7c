package sim

import (
	"math"

	"pedsim/internal/force"
	"pedsim/internal/geom"
)

// Group is a cohort of pedestrians moved together by one worker. Members
// attract each other through the group force.
type Group struct {
	id       int
	members  []*Pedestrian
	centroid geom.Vec
}

// NewGroup creates a group and sets the back-reference of every member.
func NewGroup(id int, members ...*Pedestrian) *Group {
	g := &Group{id: id, members: members}
	for _, p := range members {
		p.group = g
	}
	g.centroid = g.computeCentroid()
	return g
}

func (g *Group) ID() int { return g.id }

// Members returns the pedestrians in their fixed movement order.
func (g *Group) Members() []*Pedestrian { return g.members }

// Centroid is the mean member position at the start of the last tick.
func (g *Group) Centroid() geom.Vec { return g.centroid }

func (g *Group) computeCentroid() geom.Vec {
	pts := make([]geom.Vec, len(g.members))
	for i, p := range g.members {
		pts[i] = p.position
	}
	return geom.Centroid(pts)
}

// move recomputes the centroid and then moves every member in order. A
// member that panics or ends up with a non-finite state is put back where it
// started the tick; the others still move.
func (g *Group) move(tc *tickContext) (moved, faults int) {
	start := make([]geom.Vec, len(g.members))
	for i, p := range g.members {
		start[i] = p.position
	}
	g.centroid = geom.Centroid(start)

	for i, p := range g.members {
		mates := make([]geom.Vec, 0, len(start)-1)
		mates = append(mates, start[:i]...)
		mates = append(mates, start[i+1:]...)
		view := force.GroupView{Size: len(g.members), Centroid: g.centroid, Mates: mates}

		if g.moveMember(tc, p, view) {
			moved++
		} else {
			faults++
		}
	}
	return moved, faults
}

func (g *Group) moveMember(tc *tickContext, p *Pedestrian, view force.GroupView) (ok bool) {
	pos, vel := p.position, p.velocity
	defer func() {
		if r := recover(); r != nil {
			tc.logger.Printf("sim: pedestrian %d of group %d panicked: %v, holding position", p.id, g.id, r)
			p.position, p.velocity = pos, vel
			ok = false
		}
	}()

	p.move(tc, view)
	if !finite(p.position) || !finite(p.velocity) {
		tc.logger.Printf("sim: pedestrian %d of group %d produced invalid state %v, holding position", p.id, g.id, p.position)
		p.position, p.velocity = pos, vel
		return false
	}
	return true
}

func finite(v geom.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}
