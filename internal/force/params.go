package force

import (
	"errors"
	"fmt"
	"math"
)

// Parameters is the 8-constant social force parameter set plus the body and
// group constants the model needs. Forces act on unit mass, so strengths are
// accelerations in m/s².
type Parameters struct {
	Tau float64 `json:"tau"` // relaxation time, s

	A1     float64 `json:"a1"`     // anisotropic pedestrian strength; 0 disables the term
	B1     float64 `json:"b1"`     // anisotropic pedestrian range, m
	A2     float64 `json:"a2"`     // isotropic pedestrian strength
	B2     float64 `json:"b2"`     // isotropic pedestrian range, m
	Lambda float64 `json:"lambda"` // weight of forces from behind, 0..1

	BoundaryA float64 `json:"boundary_a"`
	BoundaryB float64 `json:"boundary_b"`

	Radius   float64 `json:"radius"`    // body radius, m
	MinForce float64 `json:"min_force"` // contributions below this are not evaluated

	Group GroupParameters `json:"group"`
}

// GroupParameters configures the group cohesion force.
type GroupParameters struct {
	FieldOfView     float64 `json:"field_of_view"` // half-angle of the forward cone, rad
	Beta1           float64 `json:"beta1"`         // field-of-view penalty
	Beta2           float64 `json:"beta2"`         // attraction toward the centroid
	Beta3           float64 `json:"beta3"`         // repulsion from close group mates
	ComfortDistance float64 `json:"comfort_distance"`
}

// DefaultParameters returns a parameter set that produces plausible walking
// behaviour at 0.1 s time steps.
func DefaultParameters() Parameters {
	return Parameters{
		Tau:       0.5,
		A1:        2.0,
		B1:        0.3,
		A2:        3.0,
		B2:        0.2,
		Lambda:    0.3,
		BoundaryA: 10.0,
		BoundaryB: 0.1,
		Radius:    0.25,
		MinForce:  0.01,
		Group: GroupParameters{
			FieldOfView:     math.Pi / 2,
			Beta1:           4.0,
			Beta2:           3.0,
			Beta3:           1.0,
			ComfortDistance: 0.8,
		},
	}
}

// ErrInvalidParameters is returned by Validate.
var ErrInvalidParameters = errors.New("invalid force parameters")

// Validate checks that every range and time constant is usable.
func (p Parameters) Validate() error {
	switch {
	case p.Tau <= 0:
		return fmt.Errorf("%w: tau must be positive, got %v", ErrInvalidParameters, p.Tau)
	case p.B2 <= 0:
		return fmt.Errorf("%w: b2 must be positive, got %v", ErrInvalidParameters, p.B2)
	case p.A1 != 0 && p.B1 <= 0:
		return fmt.Errorf("%w: b1 must be positive when a1 is set, got %v", ErrInvalidParameters, p.B1)
	case p.BoundaryB <= 0:
		return fmt.Errorf("%w: boundary_b must be positive, got %v", ErrInvalidParameters, p.BoundaryB)
	case p.Lambda < 0 || p.Lambda > 1:
		return fmt.Errorf("%w: lambda must be within [0,1], got %v", ErrInvalidParameters, p.Lambda)
	case p.Radius < 0:
		return fmt.Errorf("%w: radius must not be negative, got %v", ErrInvalidParameters, p.Radius)
	case p.MinForce <= 0:
		return fmt.Errorf("%w: min_force must be positive, got %v", ErrInvalidParameters, p.MinForce)
	}
	return nil
}

// cutoff returns the centre distance beyond which strength·exp((contact-d)/rng)
// drops below minForce.
func cutoff(strength, rng, contact, minForce float64) float64 {
	if strength <= minForce {
		return contact
	}
	return contact + rng*math.Log(strength/minForce)
}

// MaxPedestrianDistance is the centre distance beyond which pedestrian
// interaction is skipped.
func (p Parameters) MaxPedestrianDistance() float64 {
	d := cutoff(p.A2, p.B2, 2*p.Radius, p.MinForce)
	if p.A1 != 0 {
		d = math.Max(d, cutoff(math.Abs(p.A1), p.B1, 2*p.Radius, p.MinForce))
	}
	return d
}

// MaxBoundaryDistance is the distance beyond which a boundary exerts no force.
func (p Parameters) MaxBoundaryDistance() float64 {
	return cutoff(p.BoundaryA, p.BoundaryB, p.Radius, p.MinForce)
}
