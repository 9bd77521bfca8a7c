// Package integrate defines the Integrator contract for turning a net force
// into a new position and velocity, along with the built-in schemes.
//
// Adding a scheme only requires implementing Integrator and registering its
// name in ByName; the movement engine never needs to change.
package integrate

import (
	"fmt"

	"pedsim/internal/geom"
)

// Body is the moving thing an Integrator advances. Forces act on unit mass.
type Body interface {
	Position() geom.Vec
	Velocity() geom.Vec

	// Force returns the net force already computed for this tick.
	Force() geom.Vec

	// ForceAt re-evaluates the force model for a trial state. Only multi-stage
	// schemes call it.
	ForceAt(pos, vel geom.Vec) geom.Vec

	// UpdateSegment is called with the displacement about to be committed so
	// that waypoint passing sees the true movement.
	UpdateSegment(from, to geom.Vec)

	// Commit stores the new position and velocity together.
	Commit(pos, vel geom.Vec)
}

// Integrator advances a Body by dt seconds. A dt of zero or less leaves the
// body untouched and does not call UpdateSegment.
type Integrator interface {
	Name() string
	Move(b Body, dt float64)
}

// Scheme names accepted by ByName.
const (
	SimpleEulerName       = "euler"
	SemiImplicitEulerName = "semi-implicit-euler"
	RungeKuttaName        = "runge-kutta"
)

// Default returns the semi-implicit Euler scheme.
func Default() Integrator { return SemiImplicitEuler{} }

// ByName resolves a scheme name. The empty string selects the default.
func ByName(name string) (Integrator, error) {
	switch name {
	case "", SemiImplicitEulerName:
		return SemiImplicitEuler{}, nil
	case SimpleEulerName:
		return SimpleEuler{}, nil
	case RungeKuttaName:
		return RungeKutta{}, nil
	default:
		return nil, fmt.Errorf("unknown integrator %q", name)
	}
}

func commit(b Body, oldPos, pos, vel geom.Vec) {
	b.UpdateSegment(oldPos, pos)
	b.Commit(pos, vel)
}

// SimpleEuler moves with the pre-update velocity.
type SimpleEuler struct{}

func (SimpleEuler) Name() string { return SimpleEulerName }

func (SimpleEuler) Move(b Body, dt float64) {
	if dt <= 0 {
		return
	}
	pos, vel := b.Position(), b.Velocity()
	newVel := vel.Add(b.Force().Scale(dt))
	newPos := pos.Add(vel.Scale(dt))
	commit(b, pos, newPos, newVel)
}

// SemiImplicitEuler updates velocity first and moves with the new velocity,
// which keeps oscillating force fields stable at the same cost as Euler.
type SemiImplicitEuler struct{}

func (SemiImplicitEuler) Name() string { return SemiImplicitEulerName }

func (SemiImplicitEuler) Move(b Body, dt float64) {
	if dt <= 0 {
		return
	}
	pos, vel := b.Position(), b.Velocity()
	newVel := vel.Add(b.Force().Scale(dt))
	newPos := pos.Add(newVel.Scale(dt))
	commit(b, pos, newPos, newVel)
}

// RungeKutta is the classic fourth-order scheme. The first stage reuses the
// force of the current tick; the three others re-evaluate the force model.
type RungeKutta struct{}

func (RungeKutta) Name() string { return RungeKuttaName }

func (RungeKutta) Move(b Body, dt float64) {
	if dt <= 0 {
		return
	}
	x0, v0 := b.Position(), b.Velocity()
	half := dt / 2

	k1x, k1v := v0, b.Force()

	x2, v2 := x0.Add(k1x.Scale(half)), v0.Add(k1v.Scale(half))
	k2x, k2v := v2, b.ForceAt(x2, v2)

	x3, v3 := x0.Add(k2x.Scale(half)), v0.Add(k2v.Scale(half))
	k3x, k3v := v3, b.ForceAt(x3, v3)

	x4, v4 := x0.Add(k3x.Scale(dt)), v0.Add(k3v.Scale(dt))
	k4x, k4v := v4, b.ForceAt(x4, v4)

	sixth := dt / 6
	newPos := x0.Add(k1x.Add(k2x.Scale(2)).Add(k3x.Scale(2)).Add(k4x).Scale(sixth))
	newVel := v0.Add(k1v.Add(k2v.Scale(2)).Add(k3v.Scale(2)).Add(k4v).Scale(sixth))
	commit(b, x0, newPos, newVel)
}
