package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"pedsim/internal/force"
	"pedsim/internal/geom"
	"pedsim/internal/integrate"
	"pedsim/internal/spatial"
	"pedsim/internal/wayfinding"
)

const maxTimeScale = 10.0

// engine is the force model and integrator used for a tick. It is replaced
// as a whole and read once at the start of every tick.
type engine struct {
	model      force.Model
	integrator integrate.Integrator
	epoch      uint64
}

// Simulation owns the spatial index, the worker pool and the crowds, and
// advances them one tick at a time.
type Simulation struct {
	cfg    Config
	logger *log.Logger
	index  *spatial.Index
	pool   *Pool

	engine atomic.Pointer[engine]

	// tickMu serialises ticks with everything that touches pedestrian state.
	tickMu    sync.Mutex
	crowds    []*Crowd
	rng       *rand.Rand
	now       float64
	ticks     uint64
	last      TickStats
	nextPed   int
	nextGroup int
	nextCrowd int
	nextRoute int

	mu        sync.RWMutex
	paused    bool
	timeScale float64
}

// TickStats summarises one tick.
type TickStats struct {
	Tick        uint64        `json:"tick"`
	Time        float64       `json:"time"` // simulation time at the end of the tick, s
	Pedestrians int           `json:"pedestrians"`
	Moved       int           `json:"moved"`
	Skipped     int           `json:"skipped"` // groups rejected by the pool
	Faults      int           `json:"faults"`
	Epoch       uint64        `json:"epoch"`
	Duration    time.Duration `json:"duration"`
}

// New builds a simulation from cfg. A nil logger falls back to log.Default.
func New(cfg Config, logger *log.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	model, err := force.NewHelbing(cfg.Force, logger)
	if err != nil {
		return nil, fmt.Errorf("force model: %w", err)
	}
	integrator, err := integrate.ByName(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:       cfg,
		logger:    logger,
		index:     spatial.New(cfg.Force.MaxBoundaryDistance()),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		timeScale: 1,
	}
	if cfg.Workers >= 0 {
		s.pool = NewPool(cfg.Workers, cfg.QueueSize, logger)
	}
	s.engine.Store(&engine{model: model, integrator: integrator})
	return s, nil
}

// Close stops the worker pool after any running tick.
func (s *Simulation) Close() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.pool != nil {
		s.pool.Close()
	}
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() Config { return s.cfg }

// Index returns the spatial index the simulation owns.
func (s *Simulation) Index() *spatial.Index { return s.index }

// AddBoundaries adds static obstacle segments. Routes derive their geometry
// against the boundaries present when they are created.
func (s *Simulation) AddBoundaries(segments ...geom.Segment) {
	s.index.AddBoundaries(segments...)
}

// NoWait as a waypoint's waiting period means no wait, even when the config
// sets a default waiting period.
const NoWait = -1.0

// NewRoute builds a route, filling in the configured width and waiting
// period where a waypoint leaves them zero, and derives its geometry.
func (s *Simulation) NewRoute(wps []wayfinding.WayPoint) (*wayfinding.Route, error) {
	s.tickMu.Lock()
	s.nextRoute++
	id := s.nextRoute
	s.tickMu.Unlock()

	filled := make([]wayfinding.WayPoint, len(wps))
	for i, wp := range wps {
		if wp.Width == 0 {
			wp.Width = s.cfg.WayPointWidth
		}
		switch wp.WaitingPeriod {
		case 0:
			wp.WaitingPeriod = s.cfg.WaitingPeriod
		case NoWait:
			wp.WaitingPeriod = 0
		}
		if wp.ID == 0 {
			wp.ID = i + 1
		}
		filled[i] = wp
	}
	r, err := wayfinding.NewRoute(id, filled)
	if err != nil {
		return nil, err
	}
	r.DeriveGeometry(s.index, s.cfg.Wayfinding)
	return r, nil
}

// SpawnCrowd creates a crowd walking route, one group per position list.
// Speeds are drawn from the configured distributions. With strict route
// checking, a pedestrian that cannot see its first waypoint fails the call
// with an error wrapping wayfinding.ErrRouteNotVisible.
func (s *Simulation) SpawnCrowd(route *wayfinding.Route, groups [][]geom.Vec) (*Crowd, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.nextCrowd++
	c := NewCrowd(s.nextCrowd, route)
	for _, positions := range groups {
		members := make([]*Pedestrian, 0, len(positions))
		for _, pos := range positions {
			s.nextPed++
			m := wayfinding.NewFollowRoute(s.nextPed, s.cfg.Wayfinding, s.logger)
			if err := m.Assign(route, pos, s.now, s.index, s.cfg.StrictRoutes); err != nil {
				return nil, fmt.Errorf("spawn crowd %d: %w", c.id, err)
			}
			normal, maxSpeed := s.cfg.sampleSpeeds(s.rng)
			members = append(members, NewPedestrian(s.nextPed, pos, normal, maxSpeed, m))
		}
		s.nextGroup++
		c.AddGroup(NewGroup(s.nextGroup, members...))
	}
	s.crowds = append(s.crowds, c)
	return c, nil
}

// SpawnFollowers creates a single-group crowd whose members follow leader.
// A leader of zero makes each member follow whoever is nearest.
func (s *Simulation) SpawnFollowers(leader int, positions []geom.Vec) *Crowd {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.nextCrowd++
	c := NewCrowd(s.nextCrowd, nil)
	members := make([]*Pedestrian, 0, len(positions))
	for _, pos := range positions {
		s.nextPed++
		m := wayfinding.NewFollowPedestrian(s.nextPed, leader, s.cfg.Wayfinding)
		normal, maxSpeed := s.cfg.sampleSpeeds(s.rng)
		members = append(members, NewPedestrian(s.nextPed, pos, normal, maxSpeed, m))
	}
	s.nextGroup++
	c.AddGroup(NewGroup(s.nextGroup, members...))
	s.crowds = append(s.crowds, c)
	return c
}

// AddCrowd adds a crowd assembled by the caller. Pedestrian ids must be
// unique across the simulation.
func (s *Simulation) AddCrowd(c *Crowd) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.crowds = append(s.crowds, c)
}

// Crowds returns the crowds in tick order.
func (s *Simulation) Crowds() []*Crowd {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return append([]*Crowd(nil), s.crowds...)
}

// Clear removes every crowd and its pedestrians.
func (s *Simulation) Clear() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	for _, c := range s.crowds {
		c.Clear()
	}
	s.crowds = nil
	s.index.Rebuild(nil)
}

// Now returns the simulation time, s.
func (s *Simulation) Now() float64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.now
}

// Step runs one tick of dt seconds starting at the current simulation time.
func (s *Simulation) Step(dt float64) TickStats {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tick(s.now, dt)
}

// Tick runs one tick of dt seconds starting at time now.
func (s *Simulation) Tick(now, dt float64) TickStats {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tick(now, dt)
}

// tick rebuilds the index from every pedestrian, then moves each crowd and
// waits for all of its groups. Every query made while moving therefore sees
// the positions from the start of the tick.
func (s *Simulation) tick(now, dt float64) TickStats {
	started := time.Now()
	eng := s.engine.Load()

	var agents []spatial.Agent
	for _, c := range s.crowds {
		agents = c.appendAgents(agents)
	}
	s.index.Rebuild(agents)

	tc := &tickContext{
		env:        s.index,
		model:      eng.model,
		integrator: eng.integrator,
		now:        now,
		dt:         dt,
		logger:     s.logger,
	}
	stats := TickStats{Pedestrians: len(agents), Epoch: eng.epoch}
	for _, c := range s.crowds {
		st := c.move(tc, s.pool, s.cfg.stallAfter())
		stats.Moved += st.moved
		stats.Skipped += st.skipped
		stats.Faults += st.faults
	}

	if dt > 0 {
		now += dt
	}
	s.now = now
	s.ticks++
	stats.Tick = s.ticks
	stats.Time = now
	stats.Duration = time.Since(started)
	s.last = stats

	if stats.Skipped > 0 || stats.Faults > 0 {
		s.logger.Printf("sim: tick %d t=%.2f skipped=%d faults=%d", stats.Tick, stats.Time, stats.Skipped, stats.Faults)
	}
	return stats
}

// LastTick returns the stats of the most recent tick.
func (s *Simulation) LastTick() TickStats {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.last
}

// PoolStats returns the worker pool counters, or zero values when groups
// are moved inline.
func (s *Simulation) PoolStats() PoolStats {
	if s.pool == nil {
		return PoolStats{}
	}
	return s.pool.Stats()
}

// Run ticks every interval until ctx is cancelled. Each tick advances the
// simulation by interval scaled by the time scale; paused ticks are not run.
// Cancellation never interrupts a tick in progress.
func (s *Simulation) Run(ctx context.Context, interval time.Duration, report func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Printf("simulation running: interval=%v integrator=%s", interval, s.Integrator().Name())
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("simulation stopped at t=%.2f", s.Now())
			return
		case <-ticker.C:
			if s.Paused() {
				continue
			}
			s.Step(interval.Seconds() * s.TimeScale())
			if report != nil {
				report(s.Snapshot())
			}
		}
	}
}

func (s *Simulation) swap(update func(e *engine)) uint64 {
	for {
		old := s.engine.Load()
		next := *old
		update(&next)
		next.epoch = old.epoch + 1
		if s.engine.CompareAndSwap(old, &next) {
			return next.epoch
		}
	}
}

// SetIntegrator replaces the integrator from the next tick on and returns
// the new engine epoch.
func (s *Simulation) SetIntegrator(in integrate.Integrator) uint64 {
	epoch := s.swap(func(e *engine) { e.integrator = in })
	s.logger.Printf("sim: integrator=%s epoch=%d", in.Name(), epoch)
	return epoch
}

// SetIntegratorByName resolves name with integrate.ByName and installs it.
func (s *Simulation) SetIntegratorByName(name string) (uint64, error) {
	in, err := integrate.ByName(name)
	if err != nil {
		return 0, err
	}
	return s.SetIntegrator(in), nil
}

// SetForceModel replaces the force model from the next tick on. Boundary
// boxes keep the padding computed at construction, so a model reaching
// further than that misses distant walls.
func (s *Simulation) SetForceModel(m force.Model) uint64 {
	if reach := m.Params().MaxBoundaryDistance(); reach > s.index.BoundaryPad() {
		s.logger.Printf("sim: force model reaches %.2fm but boundaries are padded by %.2fm", reach, s.index.BoundaryPad())
	}
	epoch := s.swap(func(e *engine) { e.model = m })
	s.logger.Printf("sim: force model replaced epoch=%d", epoch)
	return epoch
}

func (s *Simulation) Integrator() integrate.Integrator { return s.engine.Load().integrator }
func (s *Simulation) ForceModel() force.Model { return s.engine.Load().model }
func (s *Simulation) Epoch() uint64 { return s.engine.Load().epoch }

// SetPaused stops or resumes Run.
func (s *Simulation) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *Simulation) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetTimeScale sets how many simulated seconds pass per wall-clock second
// in Run. Values are clamped to [0, 10].
func (s *Simulation) SetTimeScale(scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scale < 0 || math.IsNaN(scale) {
		scale = 0
	} else if scale > maxTimeScale {
		scale = maxTimeScale
	}
	s.timeScale = scale
}

func (s *Simulation) TimeScale() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeScale
}
