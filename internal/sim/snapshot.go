package sim

import (
	"fmt"

	"pedsim/internal/force"
	"pedsim/internal/geom"
	"pedsim/internal/integrate"
	"pedsim/internal/wayfinding"
)

// PedestrianState is the read-only view of one pedestrian after a tick.
type PedestrianState struct {
	ID        int              `json:"id"`
	GroupID   int              `json:"group_id"`
	CrowdID   int              `json:"crowd_id"`
	Position  geom.Vec         `json:"position"`
	Velocity  geom.Vec         `json:"velocity"`
	Direction geom.Vec         `json:"direction"`
	Forces    force.Components `json:"forces"`

	Wayfinding  string  `json:"wayfinding"`
	Destination int     `json:"destination"` // waypoint id, 0 when none
	Visited     int     `json:"visited"`
	Waiting     bool    `json:"waiting"`
	WaitUntil   float64 `json:"wait_until,omitempty"` // end of the running wait, s
	Lost        bool    `json:"lost"`
	Finished    bool    `json:"finished"`
}

// Snapshot is a consistent copy of the simulation between two ticks.
type Snapshot struct {
	Stats       TickStats         `json:"stats"`
	Control     ControlState      `json:"control"`
	Pedestrians []PedestrianState `json:"pedestrians"`
}

// Snapshot copies the state of every pedestrian. It waits for a running tick
// to finish.
func (s *Simulation) Snapshot() Snapshot {
	control := s.ControlState()

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	snap := Snapshot{Stats: s.last, Control: control}
	for _, c := range s.crowds {
		for _, p := range c.Pedestrians() {
			snap.Pedestrians = append(snap.Pedestrians, s.pedestrianState(c, p))
		}
	}
	return snap
}

func (s *Simulation) pedestrianState(c *Crowd, p *Pedestrian) PedestrianState {
	st := PedestrianState{
		ID:         p.id,
		GroupID:    p.GroupID(),
		CrowdID:    c.id,
		Position:   p.position,
		Velocity:   p.velocity,
		Direction:  p.direction,
		Forces:     p.forces,
		Wayfinding: wayfinding.Kind(p.wayfinding),
		Finished:   wayfinding.Finished(p.wayfinding),
	}
	if fr, ok := p.wayfinding.(*wayfinding.FollowRoute); ok {
		if d := fr.Destination(); d != nil {
			st.Destination = d.ID
		}
		st.Visited = len(fr.Visited())
		if st.Waiting = fr.Waiting(s.now); st.Waiting {
			st.WaitUntil = fr.WaitUntil()
		}
		st.Lost = fr.Lost()
	}
	return st
}

// ControlSettings is a partial update of the runtime knobs. Nil and empty
// fields are left unchanged.
type ControlSettings struct {
	Integrator string
	Paused     *bool
	TimeScale  *float64
}

// ControlState is the current value of every runtime knob.
type ControlState struct {
	Integrator string  `json:"integrator"`
	Paused     bool    `json:"paused"`
	TimeScale  float64 `json:"time_scale"`
	Epoch      uint64  `json:"epoch"`
}

// ControlState returns the current knob values.
func (s *Simulation) ControlState() ControlState {
	eng := s.engine.Load()
	return ControlState{
		Integrator: eng.integrator.Name(),
		Paused:     s.Paused(),
		TimeScale:  s.TimeScale(),
		Epoch:      eng.epoch,
	}
}

// ApplyControlSettings applies cs and returns the resulting state. An unknown
// integrator name is rejected before anything changes.
func (s *Simulation) ApplyControlSettings(cs ControlSettings) (ControlState, error) {
	if cs.Integrator != "" {
		in, err := integrate.ByName(cs.Integrator)
		if err != nil {
			return s.ControlState(), fmt.Errorf("apply control: %w", err)
		}
		if in.Name() != s.Integrator().Name() {
			s.SetIntegrator(in)
		}
	}
	if cs.Paused != nil {
		s.SetPaused(*cs.Paused)
	}
	if cs.TimeScale != nil {
		s.SetTimeScale(*cs.TimeScale)
	}
	return s.ControlState(), nil
}
