package sim

import (
	"sync/atomic"
	"time"

	"pedsim/internal/spatial"
	"pedsim/internal/wayfinding"
)

// Crowd is an ordered set of groups sharing one optional route. The force
// model and integrator belong to the simulation, not the crowd.
type Crowd struct {
	id     int
	groups []*Group
	route  *wayfinding.Route
}

// NewCrowd creates an empty crowd. route may be nil.
func NewCrowd(id int, route *wayfinding.Route) *Crowd {
	return &Crowd{id: id, route: route}
}

func (c *Crowd) ID() int { return c.id }
func (c *Crowd) Route() *wayfinding.Route { return c.route }
func (c *Crowd) Groups() []*Group { return c.groups }

// AddGroup appends g to the movement order.
func (c *Crowd) AddGroup(g *Group) { c.groups = append(c.groups, g) }

// Clear removes every group. This is the only way pedestrians leave a crowd.
func (c *Crowd) Clear() { c.groups = nil }

// Pedestrians returns every member of every group in movement order.
func (c *Crowd) Pedestrians() []*Pedestrian {
	var out []*Pedestrian
	for _, g := range c.groups {
		out = append(out, g.members...)
	}
	return out
}

// Len returns the number of pedestrians.
func (c *Crowd) Len() int {
	n := 0
	for _, g := range c.groups {
		n += len(g.members)
	}
	return n
}

func (c *Crowd) appendAgents(dst []spatial.Agent) []spatial.Agent {
	for _, g := range c.groups {
		for _, p := range g.members {
			dst = append(dst, p.agent())
		}
	}
	return dst
}

type moveStats struct {
	moved   int
	skipped int
	faults  int
}

// move advances every group by one tick and returns once all of them are
// done. Each group is a task on pool; with a nil pool groups run inline. A
// group the pool rejects is skipped for this tick.
//
// The wait has no deadline. After stallAfter a diagnostic is logged once per
// second until the last group finishes.
func (c *Crowd) move(tc *tickContext, pool *Pool, stallAfter time.Duration) moveStats {
	var st moveStats
	if len(c.groups) == 0 {
		return st
	}

	var (
		pending atomic.Int64
		moved   atomic.Int64
		faults  atomic.Int64
		done    = make(chan struct{})
	)
	// One extra count is held until every group has been submitted, so the
	// barrier cannot open while dispatch is still running.
	pending.Store(int64(len(c.groups)) + 1)
	finish := func() {
		if pending.Add(-1) == 0 {
			close(done)
		}
	}

	for _, g := range c.groups {
		g := g
		task := func() {
			defer finish()
			m, f := g.move(tc)
			moved.Add(int64(m))
			faults.Add(int64(f))
		}
		if pool == nil {
			task()
			continue
		}
		if !pool.TrySubmit(task) {
			tc.logger.Printf("sim: crowd %d skipped group %d, worker pool saturated", c.id, g.id)
			st.skipped++
			finish()
		}
	}
	finish()

	c.await(tc, done, &pending, stallAfter)
	st.moved = int(moved.Load())
	st.faults = int(faults.Load())
	return st
}

func (c *Crowd) await(tc *tickContext, done <-chan struct{}, pending *atomic.Int64, stallAfter time.Duration) {
	if stallAfter <= 0 {
		<-done
		return
	}
	start := time.Now()
	stall := time.NewTimer(stallAfter)
	defer stall.Stop()
	select {
	case <-done:
		return
	case <-stall.C:
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		tc.logger.Printf("sim: crowd %d tick at t=%.2f still waiting on %d groups after %v",
			c.id, tc.now, pending.Load(), time.Since(start).Round(time.Millisecond))
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
