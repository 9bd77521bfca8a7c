package sim

import (
	"log"
	"math"

	"pedsim/internal/force"
	"pedsim/internal/geom"
	"pedsim/internal/integrate"
	"pedsim/internal/spatial"
	"pedsim/internal/wayfinding"
)

// Pedestrian is a simulated walker. Its state is written only by the worker
// moving its group; readers such as a visualizer go through Simulation.Snapshot.
type Pedestrian struct {
	id    int
	group *Group

	position geom.Vec
	velocity geom.Vec

	normalSpeed float64
	maxSpeed    float64

	wayfinding wayfinding.Model
	direction  geom.Vec
	forces     force.Components
}

// NewPedestrian creates a pedestrian at rest. Negative speeds are clamped to
// zero and the maximum speed is raised to the normal speed if below it.
func NewPedestrian(id int, pos geom.Vec, normalSpeed, maxSpeed float64, m wayfinding.Model) *Pedestrian {
	normalSpeed = math.Max(normalSpeed, 0)
	maxSpeed = math.Max(maxSpeed, normalSpeed)
	return &Pedestrian{
		id:          id,
		position:    pos,
		normalSpeed: normalSpeed,
		maxSpeed:    maxSpeed,
		wayfinding:  m,
	}
}

func (p *Pedestrian) ID() int { return p.id }
func (p *Pedestrian) Position() geom.Vec { return p.position }
func (p *Pedestrian) Velocity() geom.Vec { return p.velocity }
func (p *Pedestrian) NormalSpeed() float64 { return p.normalSpeed }
func (p *Pedestrian) MaxSpeed() float64 { return p.maxSpeed }
func (p *Pedestrian) Wayfinding() wayfinding.Model { return p.wayfinding }

// Direction is the desired walking direction used in the last tick.
func (p *Pedestrian) Direction() geom.Vec { return p.direction }

// Forces returns the force components computed in the last tick.
func (p *Pedestrian) Forces() force.Components { return p.forces }

// Group returns the owning group, or nil before the pedestrian joins one.
func (p *Pedestrian) Group() *Group { return p.group }

// GroupID returns the owning group's id, or zero.
func (p *Pedestrian) GroupID() int {
	if p.group == nil {
		return 0
	}
	return p.group.id
}

func (p *Pedestrian) agent() spatial.Agent {
	return spatial.Agent{ID: p.id, GroupID: p.GroupID(), Position: p.position, Velocity: p.velocity}
}

// tickContext is everything shared by all pedestrians moved in one tick.
type tickContext struct {
	env        wayfinding.Env
	model      force.Model
	integrator integrate.Integrator
	now        float64
	dt         float64
	logger     *log.Logger
}

// move runs one movement step: ask wayfinding for a direction, compute the
// forces against the tick's index snapshot, then integrate.
func (p *Pedestrian) move(tc *tickContext, view force.GroupView) {
	p.direction = wayfinding.DesiredDirection(p.wayfinding, tc.env, wayfinding.Input{
		Now:         tc.now,
		Position:    p.position,
		Velocity:    p.velocity,
		NormalSpeed: p.normalSpeed,
	})
	b := &body{p: p, tc: tc, view: view}
	p.forces = tc.model.Compute(b.subject(p.position, p.velocity), tc.env)
	tc.integrator.Move(b, tc.dt)
}

// body adapts a pedestrian to integrate.Body for the duration of one move.
type body struct {
	p    *Pedestrian
	tc   *tickContext
	view force.GroupView
}

func (b *body) subject(pos, vel geom.Vec) force.Subject {
	return force.Subject{
		ID:           b.p.id,
		GroupID:      b.p.GroupID(),
		Position:     pos,
		Velocity:     vel,
		Direction:    b.p.direction,
		NormalSpeed:  b.p.normalSpeed,
		MaxSpeed:     b.p.maxSpeed,
		AverageSpeed: wayfinding.AverageSpeed(b.p.wayfinding, b.p.normalSpeed),
		Group:        b.view,
	}
}

func (b *body) Position() geom.Vec { return b.p.position }
func (b *body) Velocity() geom.Vec { return b.p.velocity }
func (b *body) Force() geom.Vec { return b.p.forces.Total }

func (b *body) ForceAt(pos, vel geom.Vec) geom.Vec {
	return b.tc.model.Compute(b.subject(pos, vel), b.tc.env).Total
}

func (b *body) UpdateSegment(from, to geom.Vec) {
	wayfinding.UpdateSegment(b.p.wayfinding, from, to)
}

// Commit stores the integrated state, capping the speed at the maximum
// desired speed when one is set.
func (b *body) Commit(pos, vel geom.Vec) {
	if limit := b.p.maxSpeed; limit > 0 {
		if l := vel.Len(); l > limit {
			vel = vel.Scale(limit / l)
		}
	}
	b.p.position, b.p.velocity = pos, vel
}
