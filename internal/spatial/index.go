// Package spatial provides the broad-phase index the movement engine queries
// for neighbouring pedestrians and nearby boundary segments.
//
// The index holds two R-trees. The pedestrian tree is a whole snapshot that is
// replaced once per tick by Rebuild; the boundary tree only ever grows. Query
// results are candidates: callers run their own exact geometric tests.
package spatial

import (
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"pedsim/internal/geom"
)

const (
	treeDim      = 2
	treeMinChild = 8
	treeMaxChild = 16
)

// Agent is the read-only copy of a pedestrian taken at the start of a tick.
type Agent struct {
	ID       int
	GroupID  int
	Position geom.Vec
	Velocity geom.Vec
}

// Bounds implements rtreego.Spatial.
func (a *Agent) Bounds() rtreego.Rect { return toRect(a.Position.Bound()) }

// Boundary is a static obstacle segment. Box is the segment's bounding box
// grown by the maximum pedestrian-boundary interaction distance, so a point
// query finds every segment close enough to exert a force.
type Boundary struct {
	Segment geom.Segment
	Box     orb.Bound
}

// Bounds implements rtreego.Spatial.
func (b *Boundary) Bounds() rtreego.Rect { return toRect(b.Box) }

type snapshot struct {
	tree   *rtreego.Rtree
	agents []Agent
	byID   map[int]int
}

// Index is owned by one simulation and passed by handle to every consumer.
// Rebuild is single-writer and must never overlap queries; the driver
// enforces that by finishing every worker of a tick before the next rebuild.
type Index struct {
	pad float64

	peds atomic.Pointer[snapshot]

	mu         sync.RWMutex
	boundaries *rtreego.Rtree
	seen       map[geom.Segment]struct{}
	count      int
}

// New creates an empty index. boundaryPad is the distance by which every
// boundary's bounding box is expanded when it is inserted.
func New(boundaryPad float64) *Index {
	if boundaryPad < 0 {
		boundaryPad = 0
	}
	idx := &Index{
		pad:        boundaryPad,
		boundaries: rtreego.NewTree(treeDim, treeMinChild, treeMaxChild),
		seen:       make(map[geom.Segment]struct{}),
	}
	idx.peds.Store(&snapshot{
		tree: rtreego.NewTree(treeDim, treeMinChild, treeMaxChild),
		byID: map[int]int{},
	})
	return idx
}

// BoundaryPad returns the distance boundary boxes are expanded by.
func (idx *Index) BoundaryPad() float64 { return idx.pad }

// Rebuild replaces the pedestrian snapshot with a copy of agents.
func (idx *Index) Rebuild(agents []Agent) {
	snap := &snapshot{
		agents: make([]Agent, len(agents)),
		byID:   make(map[int]int, len(agents)),
	}
	copy(snap.agents, agents)

	objs := make([]rtreego.Spatial, 0, len(snap.agents))
	for i := range snap.agents {
		a := &snap.agents[i]
		if a.Position.IsNaN() {
			continue
		}
		snap.byID[a.ID] = i
		objs = append(objs, a)
	}
	snap.tree = rtreego.NewTree(treeDim, treeMinChild, treeMaxChild, objs...)
	idx.peds.Store(snap)
}

// AddBoundaries inserts segments that are not already present. Segments are
// matched regardless of direction.
func (idx *Index) AddBoundaries(segments ...geom.Segment) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, s := range segments {
		key := canonical(s)
		if _, ok := idx.seen[key]; ok {
			continue
		}
		if key.A.IsNaN() || key.B.IsNaN() {
			continue
		}
		idx.seen[key] = struct{}{}
		idx.boundaries.Insert(&Boundary{Segment: key, Box: key.Bound().Pad(idx.pad)})
		idx.count++
	}
}

// QueryPedestrians returns the snapshot agents whose position lies in box.
func (idx *Index) QueryPedestrians(box orb.Bound) []Agent {
	snap := idx.peds.Load()
	hits := snap.tree.SearchIntersect(toRect(box))
	out := make([]Agent, 0, len(hits))
	for _, h := range hits {
		out = append(out, *h.(*Agent))
	}
	return out
}

// QueryBoundaries returns the boundaries whose expanded box intersects box.
func (idx *Index) QueryBoundaries(box orb.Bound) []Boundary {
	idx.mu.RLock()
	hits := idx.boundaries.SearchIntersect(toRect(box))
	idx.mu.RUnlock()

	out := make([]Boundary, 0, len(hits))
	for _, h := range hits {
		out = append(out, *h.(*Boundary))
	}
	return out
}

// Pedestrian looks up an agent in the current snapshot by id.
func (idx *Index) Pedestrian(id int) (Agent, bool) {
	snap := idx.peds.Load()
	i, ok := snap.byID[id]
	if !ok {
		return Agent{}, false
	}
	return snap.agents[i], true
}

// CountPedestrians returns the number of agents in the current snapshot.
func (idx *Index) CountPedestrians() int { return len(idx.peds.Load().byID) }

// CountBoundaries returns the number of distinct boundary segments.
func (idx *Index) CountBoundaries() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Visible reports whether the straight line from a to b crosses no boundary.
// Malformed input is treated as not visible.
func (idx *Index) Visible(a, b geom.Vec) bool {
	if a.IsNaN() || b.IsNaN() {
		return false
	}
	sight := geom.Seg(a, b)
	for _, bd := range idx.QueryBoundaries(sight.Bound()) {
		if sight.Intersects(bd.Segment) {
			return false
		}
	}
	return true
}

func canonical(s geom.Segment) geom.Segment {
	if s.B.X < s.A.X || (s.B.X == s.A.X && s.B.Y < s.A.Y) {
		return geom.Seg(s.B, s.A)
	}
	return s
}

// toRect converts an orb bound to an rtreego rectangle grown by geom.Epsilon
// on every side. rtreego rejects zero-length sides and does not report
// rectangles that merely touch, so a wall lying on the edge of a query box
// would otherwise be missed.
func toRect(b orb.Bound) rtreego.Rect {
	lengths := []float64{
		b.Max[0] - b.Min[0] + 2*geom.Epsilon,
		b.Max[1] - b.Min[1] + 2*geom.Epsilon,
	}
	// NewRect only fails on non-positive lengths, which the padding rules out.
	r, _ := rtreego.NewRect(rtreego.Point{b.Min[0] - geom.Epsilon, b.Min[1] - geom.Epsilon}, lengths)
	return r
}
