// Package octree implements the (optionally loose) octree spatial index
// variant: lazy 8-ary subdivision with pooled nodes.
package octree

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/internal/pool"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

// node is a single octree node. Leaf iff all children are nil. parent is
// a non-owning back-reference used only during merge — children are
// owned by the parent's children array.
type node struct {
	tight  bounds.AABB
	loose  bounds.AABB
	children [8]*node
	parent   *node
	objects  []uint64
	depth    int
}

func (n *node) reset() {
	n.tight = bounds.AABB{}
	n.loose = bounds.AABB{}
	n.children = [8]*node{}
	n.parent = nil
	n.objects = n.objects[:0]
	n.depth = 0
}

func (n *node) isLeaf() bool {
	for _, c := range n.children {
		if c != nil {
			return false
		}
	}
	return true
}

// Config configures an Octree's subdivision thresholds and loose factor.
type Config struct {
	WorldBounds       bounds.AABB
	MaxDepth          int
	MaxObjectsPerNode int
	MinObjectsToMerge int
	LooseFactor       float64 // 1.0 = tight octree, (1,2] = loose
}

// Octree is the octree / loose-octree spatial index. Not internally
// thread-safe — the manager facade serializes mutations.
type Octree struct {
	cfg    Config
	root   *node
	pool   *pool.Pool[node]
	byID   map[uint64]*node
	bounds map[uint64]bounds.AABB
	layer  map[uint64]int
	count  int

	lastStats spatialindex.Stats
}

// New builds an Octree over cfg.WorldBounds.
func New(cfg Config) *Octree {
	if cfg.LooseFactor < 1 {
		cfg.LooseFactor = 1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 8
	}
	if cfg.MaxObjectsPerNode <= 0 {
		cfg.MaxObjectsPerNode = 16
	}

	p := pool.New[node]()
	o := &Octree{
		cfg:    cfg,
		pool:   p,
		byID:   make(map[uint64]*node),
		bounds: make(map[uint64]bounds.AABB),
		layer:  make(map[uint64]int),
	}
	o.root = o.newNode(cfg.WorldBounds, nil, 0)
	return o
}

func (o *Octree) newNode(tight bounds.AABB, parent *node, depth int) *node {
	n := o.pool.Get()
	n.tight = tight
	n.loose = looseBounds(tight, o.cfg.LooseFactor)
	n.parent = parent
	n.depth = depth
	return n
}

func looseBounds(tight bounds.AABB, factor float64) bounds.AABB {
	if factor <= 1.0 {
		return tight
	}
	center := tight.Center()
	half := tight.HalfExtents().Scale(factor)
	return bounds.AABB{Min: center.Sub(half), Max: center.Add(half)}
}

// octantCenter returns the tight bounds of the given octant (0-7, bit 0 =
// +X, bit 1 = +Y, bit 2 = +Z) of parentBounds split at its center.
func octantCenter(parentBounds bounds.AABB, octant int) bounds.AABB {
	center := parentBounds.Center()
	minB := parentBounds.Min
	maxB := parentBounds.Max

	childMin := vecmath.Vector3{}
	childMax := vecmath.Vector3{}

	if octant&1 != 0 {
		childMin.X, childMax.X = center.X, maxB.X
	} else {
		childMin.X, childMax.X = minB.X, center.X
	}
	if octant&2 != 0 {
		childMin.Y, childMax.Y = center.Y, maxB.Y
	} else {
		childMin.Y, childMax.Y = minB.Y, center.Y
	}
	if octant&4 != 0 {
		childMin.Z, childMax.Z = center.Z, maxB.Z
	} else {
		childMin.Z, childMax.Z = minB.Z, center.Z
	}
	return bounds.AABB{Min: childMin, Max: childMax}
}

func octantOf(parentCenter, objCenter vecmath.Vector3) int {
	idx := 0
	if objCenter.X >= parentCenter.X {
		idx |= 1
	}
	if objCenter.Y >= parentCenter.Y {
		idx |= 2
	}
	if objCenter.Z >= parentCenter.Z {
		idx |= 4
	}
	return idx
}

func (o *Octree) subdivide(n *node) {
	for i := 0; i < 8; i++ {
		childBounds := octantCenter(n.tight, i)
		n.children[i] = o.newNode(childBounds, n, n.depth+1)
	}

	objs := n.objects
	n.objects = nil
	center := n.tight.Center()
	for _, id := range objs {
		a := o.bounds[id]
		childIdx := octantOf(center, a.Center())
		child := n.children[childIdx]
		child.objects = append(child.objects, id)
		o.byID[id] = child
	}
}

func (o *Octree) Insert(id uint64, a bounds.AABB, layer int) {
	if _, ok := o.byID[id]; ok {
		o.Update(id, a)
		return
	}

	o.bounds[id] = a
	o.layer[id] = layer
	o.count++

	n := o.root
	for {
		if n.isLeaf() {
			n.objects = append(n.objects, id)
			o.byID[id] = n
			if len(n.objects) > o.cfg.MaxObjectsPerNode && n.depth < o.cfg.MaxDepth {
				o.subdivide(n)
			}
			return
		}
		center := n.tight.Center()
		childIdx := octantOf(center, a.Center())
		n = n.children[childIdx]
	}
}

func (o *Octree) Remove(id uint64) bool {
	n, ok := o.byID[id]
	if !ok {
		return false
	}
	for i, existing := range n.objects {
		if existing == id {
			n.objects[i] = n.objects[len(n.objects)-1]
			n.objects = n.objects[:len(n.objects)-1]
			break
		}
	}
	delete(o.byID, id)
	delete(o.bounds, id)
	delete(o.layer, id)
	o.count--
	o.tryMerge(n.parent)
	return true
}

// tryMerge walks up from n, collapsing a subtree back into its parent
// once total population drops below MinObjectsToMerge. Population and
// collection both recurse through subdivided children, since a child's
// own objects slice is empty once it has been subdivided itself — its
// real population lives further down in its own children.
func (o *Octree) tryMerge(n *node) {
	for n != nil {
		if n.isLeaf() {
			n = n.parent
			continue
		}
		if o.subtreePopulation(n) >= o.cfg.MinObjectsToMerge {
			return
		}
		var collected []uint64
		o.collectIDs(n, &collected)
		o.releaseSubtreeNodes(n)
		n.children = [8]*node{}
		n.objects = collected
		for _, id := range collected {
			o.byID[id] = n
		}
		n = n.parent
	}
}

// subtreePopulation returns the total number of live objects held under
// n, recursing into subdivided children.
func (o *Octree) subtreePopulation(n *node) int {
	if n == nil {
		return 0
	}
	if n.isLeaf() {
		return len(n.objects)
	}
	total := 0
	for _, c := range n.children {
		total += o.subtreePopulation(c)
	}
	return total
}

// collectIDs appends every object id held under n to out, recursing
// into subdivided children.
func (o *Octree) collectIDs(n *node, out *[]uint64) {
	if n == nil {
		return
	}
	if n.isLeaf() {
		*out = append(*out, n.objects...)
		return
	}
	for _, c := range n.children {
		o.collectIDs(c, out)
	}
}

// releaseSubtreeNodes returns every descendant node of n (not n itself)
// to the pool, releasing a subdivided child's own children first so a
// multi-level subtree is fully drained rather than just its top layer.
func (o *Octree) releaseSubtreeNodes(n *node) {
	for _, c := range n.children {
		if c == nil {
			continue
		}
		if !c.isLeaf() {
			o.releaseSubtreeNodes(c)
		}
		o.pool.Put(c, (*node).reset)
	}
}

// Update removes and reinserts if the object's new center falls outside
// its current node's tight bounds — the loose bound absorbs small moves
// without any tree change, per the loose-octree move-threshold decision
// recorded in DESIGN.md.
func (o *Octree) Update(id uint64, a bounds.AABB) bool {
	n, ok := o.byID[id]
	if !ok {
		return false
	}
	o.bounds[id] = a

	if n.tight.ContainsPoint(a.Center()) {
		return true
	}

	layer := o.layer[id]
	o.Remove(id)
	o.Insert(id, a, layer)
	return true
}

func (o *Octree) Clear() {
	o.root = o.newNode(o.cfg.WorldBounds, nil, 0)
	o.byID = make(map[uint64]*node)
	o.bounds = make(map[uint64]bounds.AABB)
	o.layer = make(map[uint64]int)
	o.count = 0
}

func (o *Octree) Contains(id uint64) bool {
	_, ok := o.byID[id]
	return ok
}

func (o *Octree) GetObjectBounds(id uint64) bounds.AABB {
	if a, ok := o.bounds[id]; ok {
		return a
	}
	return bounds.AABB{Min: vecmath.Vector3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}, Max: vecmath.Vector3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}}
}

func (o *Octree) GetObjectCount() int { return o.count }

func (o *Octree) GetBounds() bounds.AABB { return o.cfg.WorldBounds }

// recordQuery resets the four per-query Stats fields to this call's
// numbers and bumps the lifetime Count; start is the query's entry time.
func (o *Octree) recordQuery(start time.Time, nodesVisited, objectsTested, objectsReturned int) {
	o.lastStats.Count++
	o.lastStats.TotalTimeNanos = uint64(time.Since(start).Nanoseconds())
	o.lastStats.TotalNodesVisited = uint64(nodesVisited)
	o.lastStats.TotalObjectsTested = uint64(objectsTested)
	o.lastStats.TotalObjectsReturn = uint64(objectsReturned)
}

func (o *Octree) QueryAABB(q bounds.AABB, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	o.visitAABBNode(o.root, q, filter, func(id uint64) bool {
		out = append(out, id)
		return true
	}, &nodesVisited, &objectsTested)
	o.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (o *Octree) QuerySphere(q bounds.Sphere, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	o.visitSphereNode(o.root, q, filter, func(id uint64) bool {
		out = append(out, id)
		return true
	}, &nodesVisited, &objectsTested)
	o.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (o *Octree) QueryFrustum(q *bounds.Frustum, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	o.visitFrustum(o.root, q, bounds.AllPlanes, filter, func(id uint64) bool {
		out = append(out, id)
		return true
	}, &nodesVisited, &objectsTested)
	o.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

// visitFrustum descends the tree carrying a plane mask: once a node
// classifies as fully Inside against a plane, that plane is cleared
// from the mask passed to its children, so coherent queries stop
// re-testing planes the whole subtree has already cleared.
func (o *Octree) visitFrustum(n *node, q *bounds.Frustum, planeMask uint32, filter spatialindex.Filter, visit spatialindex.VisitorFunc, nodesVisited, objectsTested *int) bool {
	if n == nil {
		return true
	}
	*nodesVisited++
	class, pruned := q.ClassifyAABBMasked(n.loose, planeMask)
	if class == bounds.Outside {
		return true
	}
	fullyInside := class == bounds.Inside

	for _, id := range n.objects {
		if !filter.Passes(id, o.layer[id]) {
			continue
		}
		if !fullyInside {
			*objectsTested++
			if !q.IntersectsAABB(o.bounds[id]) {
				continue
			}
		}
		if !visit(id) {
			return false
		}
	}
	for _, c := range n.children {
		if !o.visitFrustum(c, q, pruned, filter, visit, nodesVisited, objectsTested) {
			return false
		}
	}
	return true
}

func (o *Octree) VisitAABB(q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	nodesVisited, objectsTested := 0, 0
	returned := 0
	o.visitAABBNode(o.root, q, filter, func(id uint64) bool {
		returned++
		return visit(id)
	}, &nodesVisited, &objectsTested)
	o.recordQuery(start, nodesVisited, objectsTested, returned)
}

func (o *Octree) visitAABBNode(n *node, q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc, nodesVisited, objectsTested *int) bool {
	if n == nil {
		return true
	}
	*nodesVisited++
	if !n.loose.IntersectsAABB(q) {
		return true
	}
	for _, id := range n.objects {
		if !filter.Passes(id, o.layer[id]) {
			continue
		}
		*objectsTested++
		if o.bounds[id].IntersectsAABB(q) {
			if !visit(id) {
				return false
			}
		}
	}
	for _, c := range n.children {
		if !o.visitAABBNode(c, q, filter, visit, nodesVisited, objectsTested) {
			return false
		}
	}
	return true
}

func (o *Octree) VisitSphere(q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	nodesVisited, objectsTested := 0, 0
	returned := 0
	o.visitSphereNode(o.root, q, filter, func(id uint64) bool {
		returned++
		return visit(id)
	}, &nodesVisited, &objectsTested)
	o.recordQuery(start, nodesVisited, objectsTested, returned)
}

func (o *Octree) visitSphereNode(n *node, q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc, nodesVisited, objectsTested *int) bool {
	if n == nil {
		return true
	}
	*nodesVisited++
	if !n.loose.IntersectsSphere(q) {
		return true
	}
	for _, id := range n.objects {
		if !filter.Passes(id, o.layer[id]) {
			continue
		}
		*objectsTested++
		if o.bounds[id].IntersectsSphere(q) {
			if !visit(id) {
				return false
			}
		}
	}
	for _, c := range n.children {
		if !o.visitSphereNode(c, q, filter, visit, nodesVisited, objectsTested) {
			return false
		}
	}
	return true
}

// QueryRay descends into children ordered by entry-t, to favor early
// termination and monotone-distance emission, then sorts ray hits in
// case sibling ordering fails to keep strict order at subtree
// boundaries.
func (o *Octree) QueryRay(ray bounds.Ray, maxT float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	var hits []spatialindex.RayHit
	tested := make(map[uint64]bool)
	nodesVisited, objectsTested := 0, 0
	o.rayNode(o.root, ray, maxT, filter, tested, &hits, &nodesVisited, &objectsTested)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	o.recordQuery(start, nodesVisited, objectsTested, len(hits))
	return hits
}

func (o *Octree) rayNode(n *node, ray bounds.Ray, maxT float64, filter spatialindex.Filter, tested map[uint64]bool, hits *[]spatialindex.RayHit, nodesVisited, objectsTested *int) {
	if n == nil {
		return
	}
	*nodesVisited++
	if hit, dist := n.loose.IntersectRay(ray); !hit || dist > maxT {
		return
	}

	for _, id := range n.objects {
		if tested[id] {
			continue
		}
		tested[id] = true
		if !filter.Passes(id, o.layer[id]) {
			continue
		}
		*objectsTested++
		if hit, dist := o.bounds[id].IntersectRay(ray); hit && dist <= maxT {
			*hits = append(*hits, spatialindex.RayHit{ID: id, Distance: dist})
		}
	}

	type childEntry struct {
		c   *node
		t   float64
		hit bool
	}
	var entries []childEntry
	for _, c := range n.children {
		if c == nil {
			continue
		}
		hit, t := c.loose.IntersectRay(ray)
		entries = append(entries, childEntry{c: c, t: t, hit: hit})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].t < entries[j].t })
	for _, e := range entries {
		if e.hit && e.t <= maxT {
			o.rayNode(e.c, ray, maxT, filter, tested, hits, nodesVisited, objectsTested)
		}
	}
}

// QueryNearest returns the single nearest object within maxDist, or the
// sentinel id if none qualifies.
func (o *Octree) QueryNearest(point vecmath.Vector3, maxDist float64, filter spatialindex.Filter) uint64 {
	res := o.QueryKNearest(point, 1, maxDist, filter)
	if len(res) == 0 {
		return spatialindex.SentinelID
	}
	return res[0].ID
}

// heapItem is one candidate in the bounded max-heap kept by
// QueryKNearest: the root is always the current worst (farthest) of the
// k best candidates found so far, so it can be evicted in O(log k) as
// closer candidates arrive.
type heapItem struct {
	id   uint64
	dist float64
}

type maxHeap []heapItem

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// QueryKNearest uses a bounded max-heap of size k and a shrinking
// running squared-radius to prune subtrees whose closest possible
// distance already exceeds the current worst kept candidate.
func (o *Octree) QueryKNearest(point vecmath.Vector3, k int, maxDist float64, filter spatialindex.Filter) []spatialindex.RayHit {
	if k <= 0 {
		return nil
	}
	start := time.Now()
	h := &maxHeap{}
	radiusSq := maxDist * maxDist
	nodesVisited, objectsTested := 0, 0
	o.kNearestNode(o.root, point, k, filter, &radiusSq, h, &nodesVisited, &objectsTested)

	out := make([]spatialindex.RayHit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(h).(heapItem)
		out[i] = spatialindex.RayHit{ID: item.id, Distance: item.dist}
	}
	o.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (o *Octree) kNearestNode(n *node, point vecmath.Vector3, k int, filter spatialindex.Filter, radiusSq *float64, h *maxHeap, nodesVisited, objectsTested *int) {
	if n == nil {
		return
	}
	*nodesVisited++
	if n.loose.DistanceSquared(point) > *radiusSq {
		return
	}

	for _, id := range n.objects {
		if !filter.Passes(id, o.layer[id]) {
			continue
		}
		*objectsTested++
		d2 := o.bounds[id].DistanceSquared(point)
		if d2 > *radiusSq {
			continue
		}
		heap.Push(h, heapItem{id: id, dist: math.Sqrt(d2)})
		if h.Len() > k {
			heap.Pop(h)
		}
		if h.Len() == k {
			worst := (*h)[0].dist
			*radiusSq = worst * worst
		}
	}

	for _, c := range n.children {
		o.kNearestNode(c, point, k, filter, radiusSq, h, nodesVisited, objectsTested)
	}
}

// Validate checks that every object's bounds fall within its node's
// loose bounds, and that every leaf's population is within
// MaxObjectsPerNode or sits at MaxDepth, returning one description per
// violation (nil means sound).
func (o *Octree) Validate() []string {
	var issues []string
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.isLeaf() {
			if len(n.objects) > o.cfg.MaxObjectsPerNode && n.depth < o.cfg.MaxDepth {
				issues = append(issues, fmt.Sprintf("node at depth %d holds %d objects (max %d) but is not at max depth", n.depth, len(n.objects), o.cfg.MaxObjectsPerNode))
			}
			for _, id := range n.objects {
				a, ok := o.bounds[id]
				if ok && !n.loose.ContainsAABB(a) {
					issues = append(issues, fmt.Sprintf("object %d bounds not contained in its node's loose bounds", id))
				}
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(o.root)
	return issues
}

func (o *Octree) GetMemoryUsage() uintptr {
	live, _ := o.pool.Stats()
	return uintptr(live)*128 + uintptr(o.count)*64
}

func (o *Octree) GetTypeName() string {
	if o.cfg.LooseFactor > 1.0 {
		return "LooseOctree"
	}
	return "Octree"
}

// SupportsMovingObjects is true only for a loose octree (LooseFactor > 1),
// whose loose bounds absorb small motion without a remove/reinsert.
func (o *Octree) SupportsMovingObjects() bool { return o.cfg.LooseFactor > 1.0 }

func (o *Octree) GetLastQueryStats() spatialindex.Stats { return o.lastStats }
