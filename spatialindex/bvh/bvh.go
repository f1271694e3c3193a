// Package bvh implements the bounding volume hierarchy spatial index
// variant: a SAH-built binary tree stored in a flat array.
package bvh

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

const (
	defaultMaxPrimitivesPerLeaf = 4
	defaultSAHBins              = 12
	defaultSAHThreshold         = 64
	traversalCost               = 1.0
	intersectionCost            = 2.0
	rebuildCostRatioThreshold   = 1.5
)

// node is one flat-array BVH node. primitiveCount == 0 marks an internal
// node (leftFirst is the left child's array index; rightChild the
// right's); primitiveCount > 0 marks a leaf (leftFirst is the first
// primitive's index into primIndex).
type node struct {
	bounds         bounds.AABB
	leftFirst      int32
	rightChild     int32
	primitiveCount int32
}

func (n *node) isLeaf() bool { return n.primitiveCount > 0 }

// primitive is one object tracked by the tree.
type primitive struct {
	id       uint64
	bounds   bounds.AABB
	centroid vecmath.Vector3
	layer    int
}

// Config configures a BVH's construction heuristics.
type Config struct {
	MaxPrimitivesPerLeaf int
	SAHBins              int
	SAHThreshold         int // below this primitive count, use full SAH instead of binned
	Parallel             bool
}

// BVH is the bounding-volume-hierarchy spatial index. Mutations mark
// needsRebuild; queries lazily rebuild. Not internally thread-safe — the
// manager facade serializes mutations and holds queries off during
// rebuild.
type BVH struct {
	cfg Config

	nodes      []node
	primitives []primitive
	primIndex  []int32 // permutation into primitives, partitioned during build
	byID       map[uint64]int // id -> index into primitives

	needsRebuild    bool
	lastBuildSAHCost float64

	lastStats spatialindex.Stats
}

// New builds an empty BVH ready for Insert.
func New(cfg Config) *BVH {
	if cfg.MaxPrimitivesPerLeaf <= 0 {
		cfg.MaxPrimitivesPerLeaf = defaultMaxPrimitivesPerLeaf
	}
	if cfg.SAHBins <= 0 {
		cfg.SAHBins = defaultSAHBins
	}
	if cfg.SAHThreshold <= 0 {
		cfg.SAHThreshold = defaultSAHThreshold
	}
	return &BVH{
		cfg:  cfg,
		byID: make(map[uint64]int),
	}
}

// NewFromObjects builds a BVH immediately from a fixed id/bounds/layer
// set — equivalent to New + Insert per object but avoids the rebuild on
// first query.
func NewFromObjects(cfg Config, ids []uint64, objBounds []bounds.AABB, layers []int) (*BVH, error) {
	if len(ids) != len(objBounds) || len(ids) != len(layers) {
		return nil, errors.New("bvh: ids, bounds and layers must be the same length")
	}
	b := New(cfg)
	for i := range ids {
		b.Insert(ids[i], objBounds[i], layers[i])
	}
	b.Rebuild()
	return b, nil
}

func surfaceArea(a bounds.AABB) float64 { return a.SurfaceArea() }

func (b *BVH) Insert(id uint64, a bounds.AABB, layer int) {
	if idx, ok := b.byID[id]; ok {
		b.primitives[idx].bounds = a
		b.primitives[idx].centroid = a.Center()
		b.primitives[idx].layer = layer
		b.needsRebuild = true
		return
	}
	idx := len(b.primitives)
	b.primitives = append(b.primitives, primitive{id: id, bounds: a, centroid: a.Center(), layer: layer})
	b.byID[id] = idx
	b.needsRebuild = true
}

func (b *BVH) Remove(id uint64) bool {
	idx, ok := b.byID[id]
	if !ok {
		return false
	}
	last := len(b.primitives) - 1
	if idx != last {
		b.primitives[idx] = b.primitives[last]
		b.byID[b.primitives[idx].id] = idx
	}
	b.primitives = b.primitives[:last]
	delete(b.byID, id)
	b.needsRebuild = true
	return true
}

func (b *BVH) Update(id uint64, a bounds.AABB) bool {
	idx, ok := b.byID[id]
	if !ok {
		return false
	}
	b.primitives[idx].bounds = a
	b.primitives[idx].centroid = a.Center()
	b.needsRebuild = true
	return true
}

func (b *BVH) Clear() {
	b.nodes = nil
	b.primitives = nil
	b.primIndex = nil
	b.byID = make(map[uint64]int)
	b.needsRebuild = false
	b.lastBuildSAHCost = 0
}

func (b *BVH) Contains(id uint64) bool {
	_, ok := b.byID[id]
	return ok
}

func (b *BVH) GetObjectBounds(id uint64) bounds.AABB {
	if idx, ok := b.byID[id]; ok {
		return b.primitives[idx].bounds
	}
	return bounds.AABB{Min: vecmath.Vector3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}, Max: vecmath.Vector3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}}
}

func (b *BVH) GetObjectCount() int { return len(b.primitives) }

func (b *BVH) GetBounds() bounds.AABB {
	b.ensureBuilt()
	if len(b.nodes) == 0 {
		return bounds.AABB{}
	}
	return b.nodes[0].bounds
}

// ensureBuilt lazily rebuilds when mutations are pending, per spec §4.5's
// lifecycle: Insert/Remove/Update mark needsRebuild, queries trigger the
// rebuild on demand.
func (b *BVH) ensureBuilt() {
	if b.needsRebuild {
		b.Rebuild()
	}
}

// Rebuild reconstructs the tree from the current primitive set using the
// same top-down SAH algorithm as initial construction.
func (b *BVH) Rebuild() {
	b.needsRebuild = false
	n := len(b.primitives)
	b.primIndex = make([]int32, n)
	for i := range b.primIndex {
		b.primIndex[i] = int32(i)
	}
	if n == 0 {
		b.nodes = nil
		b.lastBuildSAHCost = 0
		return
	}
	b.nodes = make([]node, 0, 2*n-1)
	b.buildRecursive(0, n, 0)
	b.lastBuildSAHCost = b.computeTreeSAHCost()
}

// Refit recomputes node bounds bottom-up without changing topology —
// cheaper than Rebuild when objects moved but the partition is still
// reasonable.
func (b *BVH) Refit() {
	if len(b.nodes) == 0 {
		return
	}
	b.refitRecursive(0)
}

func (b *BVH) refitRecursive(nodeIdx int32) bounds.AABB {
	n := &b.nodes[nodeIdx]
	if n.isLeaf() {
		bb := b.primitives[b.primIndex[n.leftFirst]].bounds
		for i := int32(1); i < n.primitiveCount; i++ {
			bb = bb.Union(b.primitives[b.primIndex[n.leftFirst+i]].bounds)
		}
		n.bounds = bb
		return bb
	}
	leftBounds := b.refitRecursive(n.leftFirst)
	rightBounds := b.refitRecursive(n.rightChild)
	n.bounds = leftBounds.Union(rightBounds)
	return n.bounds
}

// RebuildIfCostExceeds rebuilds when the ratio of the current tree's SAH
// cost to the cost recorded at the last rebuild exceeds threshold — the
// heuristic spec §4.5 names for deciding when Refit-only drift has
// degraded the tree enough to warrant a full Rebuild.
func (b *BVH) RebuildIfCostExceeds(threshold float64) bool {
	if threshold <= 0 {
		threshold = rebuildCostRatioThreshold
	}
	if b.lastBuildSAHCost <= 0 {
		return false
	}
	current := b.computeTreeSAHCost()
	if current/b.lastBuildSAHCost > threshold {
		b.Rebuild()
		return true
	}
	return false
}

// buildRecursive builds the subtree over primIndex[begin:end] at the
// given depth and returns its index in b.nodes. The left child is
// always emitted immediately after its parent so leftFirst for internal
// nodes equals the left child's array index.
func (b *BVH) buildRecursive(begin, end, depth int) int32 {
	nodeIdx := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{})

	nodeBounds := b.primitives[b.primIndex[begin]].bounds
	centroidMin := b.primitives[b.primIndex[begin]].centroid
	centroidMax := centroidMin
	for i := begin + 1; i < end; i++ {
		p := &b.primitives[b.primIndex[i]]
		nodeBounds = nodeBounds.Union(p.bounds)
		centroidMin = vecmath.Min(centroidMin, p.centroid)
		centroidMax = vecmath.Max(centroidMax, p.centroid)
	}

	count := end - begin
	if count <= b.cfg.MaxPrimitivesPerLeaf || depth > 63 {
		b.nodes[nodeIdx] = node{bounds: nodeBounds, leftFirst: int32(begin), primitiveCount: int32(count)}
		return nodeIdx
	}

	axis, splitPos, splitCost, ok := b.findBestSplit(begin, end, centroidMin, centroidMax)
	leafCost := intersectionCost * float64(count)
	if !ok || splitCost >= leafCost {
		b.nodes[nodeIdx] = node{bounds: nodeBounds, leftFirst: int32(begin), primitiveCount: int32(count)}
		return nodeIdx
	}

	mid := b.partition(begin, end, axis, splitPos)
	if mid <= begin || mid >= end {
		mid = b.medianSplit(begin, end, axis)
	}

	left := b.buildRecursive(begin, mid, depth+1)
	right := b.buildRecursive(mid, end, depth+1)
	b.nodes[nodeIdx] = node{bounds: nodeBounds, leftFirst: left, rightChild: right, primitiveCount: 0}
	return nodeIdx
}

// findBestSplit evaluates binned SAH over all three axes (or full SAH
// when count < SAHThreshold) and returns the best axis/bin-boundary
// position plus its SAH cost.
func (b *BVH) findBestSplit(begin, end int, centroidMin, centroidMax vecmath.Vector3) (axis int, splitPos float64, cost float64, ok bool) {
	count := end - begin
	nodeBounds := b.primitives[b.primIndex[begin]].bounds
	for i := begin + 1; i < end; i++ {
		nodeBounds = nodeBounds.Union(b.primitives[b.primIndex[i]].bounds)
	}
	parentSA := surfaceArea(nodeBounds)
	if parentSA <= 0 {
		return 0, 0, math.Inf(1), false
	}

	bestCost := math.Inf(1)
	bestAxis := -1
	bestPos := 0.0

	axes := [3]func(vecmath.Vector3) float64{
		func(v vecmath.Vector3) float64 { return v.X },
		func(v vecmath.Vector3) float64 { return v.Y },
		func(v vecmath.Vector3) float64 { return v.Z },
	}

	evalAxis := func(a int) {
		lo, hi := axes[a](centroidMin), axes[a](centroidMax)
		if hi-lo < 1e-12 {
			return
		}
		if count < b.cfg.SAHThreshold {
			b.evalFullSAH(begin, end, a, axes[a], parentSA, &bestCost, &bestAxis, &bestPos)
		} else {
			b.evalBinnedSAH(begin, end, a, axes[a], lo, hi, parentSA, &bestCost, &bestAxis, &bestPos)
		}
	}

	if b.cfg.Parallel && count >= 256 {
		var g errgroup.Group
		costs := make([]float64, 3)
		poss := make([]float64, 3)
		for a := 0; a < 3; a++ {
			a := a
			g.Go(func() error {
				localBest := math.Inf(1)
				localPos := 0.0
				localAxis := -1
				lo, hi := axes[a](centroidMin), axes[a](centroidMax)
				if hi-lo >= 1e-12 {
					if count < b.cfg.SAHThreshold {
						b.evalFullSAH(begin, end, a, axes[a], parentSA, &localBest, &localAxis, &localPos)
					} else {
						b.evalBinnedSAH(begin, end, a, axes[a], lo, hi, parentSA, &localBest, &localAxis, &localPos)
					}
				}
				costs[a] = localBest
				poss[a] = localPos
				return nil
			})
		}
		_ = g.Wait()
		for a := 0; a < 3; a++ {
			if costs[a] < bestCost {
				bestCost = costs[a]
				bestAxis = a
				bestPos = poss[a]
			}
		}
	} else {
		for a := 0; a < 3; a++ {
			evalAxis(a)
		}
	}

	if bestAxis < 0 {
		return 0, 0, math.Inf(1), false
	}
	return bestAxis, bestPos, traversalCost + intersectionCost*bestCost, true
}

// evalBinnedSAH distributes centroids into SAHBins equal-width bins
// across [lo,hi] on the given axis, computes prefix/suffix sweeps of
// (bounds, count), and evaluates SAH cost at every bin boundary.
func (b *BVH) evalBinnedSAH(begin, end, axis int, proj func(vecmath.Vector3) float64, lo, hi, parentSA float64, bestCost *float64, bestAxis *int, bestPos *float64) {
	bins := b.cfg.SAHBins
	binBounds := make([]bounds.AABB, bins)
	binCount := make([]int, bins)
	hasBin := make([]bool, bins)

	scale := float64(bins) / (hi - lo)
	binOf := func(c float64) int {
		i := int((c - lo) * scale)
		if i < 0 {
			i = 0
		}
		if i >= bins {
			i = bins - 1
		}
		return i
	}

	for i := begin; i < end; i++ {
		p := &b.primitives[b.primIndex[i]]
		bi := binOf(proj(p.centroid))
		if !hasBin[bi] {
			binBounds[bi] = p.bounds
			hasBin[bi] = true
		} else {
			binBounds[bi] = binBounds[bi].Union(p.bounds)
		}
		binCount[bi]++
	}

	prefixBounds := make([]bounds.AABB, bins)
	prefixCount := make([]int, bins)
	suffixBounds := make([]bounds.AABB, bins)
	suffixCount := make([]int, bins)

	var running bounds.AABB
	runningSet := false
	runningCount := 0
	for i := 0; i < bins; i++ {
		if hasBin[i] {
			if !runningSet {
				running = binBounds[i]
				runningSet = true
			} else {
				running = running.Union(binBounds[i])
			}
			runningCount += binCount[i]
		}
		prefixBounds[i] = running
		prefixCount[i] = runningCount
	}

	running = bounds.AABB{}
	runningSet = false
	runningCount = 0
	for i := bins - 1; i >= 0; i-- {
		if hasBin[i] {
			if !runningSet {
				running = binBounds[i]
				runningSet = true
			} else {
				running = running.Union(binBounds[i])
			}
			runningCount += binCount[i]
		}
		suffixBounds[i] = running
		suffixCount[i] = runningCount
	}

	for split := 1; split < bins; split++ {
		nL := prefixCount[split-1]
		nR := suffixCount[split]
		if nL == 0 || nR == 0 {
			continue
		}
		cost := (surfaceArea(prefixBounds[split-1])*float64(nL) + surfaceArea(suffixBounds[split])*float64(nR)) / parentSA
		if cost < *bestCost {
			*bestCost = cost
			*bestAxis = axis
			*bestPos = lo + (hi-lo)*float64(split)/float64(bins)
		}
	}
}

// evalFullSAH sorts the slice on axis and evaluates every candidate
// split — higher quality than binning, used only below SAHThreshold.
func (b *BVH) evalFullSAH(begin, end, axis int, proj func(vecmath.Vector3) float64, parentSA float64, bestCost *float64, bestAxis *int, bestPos *float64) {
	order := make([]int32, end-begin)
	for i := range order {
		order[i] = b.primIndex[begin+i]
	}
	sort.Slice(order, func(i, j int) bool {
		return proj(b.primitives[order[i]].centroid) < proj(b.primitives[order[j]].centroid)
	})

	n := len(order)
	prefixBounds := make([]bounds.AABB, n)
	suffixBounds := make([]bounds.AABB, n)
	prefixBounds[0] = b.primitives[order[0]].bounds
	for i := 1; i < n; i++ {
		prefixBounds[i] = prefixBounds[i-1].Union(b.primitives[order[i]].bounds)
	}
	suffixBounds[n-1] = b.primitives[order[n-1]].bounds
	for i := n - 2; i >= 0; i-- {
		suffixBounds[i] = suffixBounds[i+1].Union(b.primitives[order[i]].bounds)
	}

	for split := 1; split < n; split++ {
		nL, nR := split, n-split
		cost := (surfaceArea(prefixBounds[split-1])*float64(nL) + surfaceArea(suffixBounds[split])*float64(nR)) / parentSA
		if cost < *bestCost {
			*bestCost = cost
			*bestAxis = axis
			*bestPos = proj(b.primitives[order[split]].centroid)
		}
	}
}

// partition reorders primIndex[begin:end] by centroid[axis] < splitPos
// and returns the boundary index.
func (b *BVH) partition(begin, end, axis int, splitPos float64) int {
	proj := func(i int32) float64 {
		switch axis {
		case 0:
			return b.primitives[i].centroid.X
		case 1:
			return b.primitives[i].centroid.Y
		default:
			return b.primitives[i].centroid.Z
		}
	}
	i, j := begin, end-1
	for i <= j {
		for i <= j && proj(b.primIndex[i]) < splitPos {
			i++
		}
		for i <= j && proj(b.primIndex[j]) >= splitPos {
			j--
		}
		if i < j {
			b.primIndex[i], b.primIndex[j] = b.primIndex[j], b.primIndex[i]
			i++
			j--
		}
	}
	return i
}

// medianSplit is the degenerate-partition fallback: sort the slice on
// axis and split at the midpoint.
func (b *BVH) medianSplit(begin, end, axis int) int {
	sub := b.primIndex[begin:end]
	proj := func(i int32) float64 {
		switch axis {
		case 0:
			return b.primitives[i].centroid.X
		case 1:
			return b.primitives[i].centroid.Y
		default:
			return b.primitives[i].centroid.Z
		}
	}
	sort.Slice(sub, func(i, j int) bool { return proj(sub[i]) < proj(sub[j]) })
	return begin + (end-begin)/2
}

func (b *BVH) computeTreeSAHCost() float64 {
	if len(b.nodes) == 0 {
		return 0
	}
	rootSA := surfaceArea(b.nodes[0].bounds)
	if rootSA <= 0 {
		return 0
	}
	var walk func(idx int32) float64
	walk = func(idx int32) float64 {
		n := &b.nodes[idx]
		sa := surfaceArea(n.bounds) / rootSA
		if n.isLeaf() {
			return sa * float64(n.primitiveCount) * intersectionCost
		}
		return sa*traversalCost + walk(n.leftFirst) + walk(n.rightChild)
	}
	return walk(0)
}

// SAHCost returns the SAH cost recorded at the last Rebuild.
func (b *BVH) SAHCost() float64 { return b.lastBuildSAHCost }

func (b *BVH) filterPrimitive(p *primitive, filter spatialindex.Filter) bool {
	return filter.Passes(p.id, p.layer)
}

// recordQuery resets the four per-query Stats fields to this call's
// numbers and bumps the lifetime Count; start is the query's entry time.
func (b *BVH) recordQuery(start time.Time, nodesVisited, objectsTested, objectsReturned int) {
	b.lastStats.Count++
	b.lastStats.TotalTimeNanos = uint64(time.Since(start).Nanoseconds())
	b.lastStats.TotalNodesVisited = uint64(nodesVisited)
	b.lastStats.TotalObjectsTested = uint64(objectsTested)
	b.lastStats.TotalObjectsReturn = uint64(objectsReturned)
}

func (b *BVH) QueryAABB(q bounds.AABB, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	b.visitAABB(q, filter, func(id uint64) bool {
		out = append(out, id)
		return true
	}, &nodesVisited, &objectsTested)
	b.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (b *BVH) QuerySphere(q bounds.Sphere, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	b.visitSphere(q, filter, func(id uint64) bool {
		out = append(out, id)
		return true
	}, &nodesVisited, &objectsTested)
	b.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (b *BVH) QueryFrustum(q *bounds.Frustum, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	b.ensureBuilt()
	var out []uint64
	nodesVisited, objectsTested := 0, 0
	if len(b.nodes) == 0 {
		b.recordQuery(start, 0, 0, 0)
		return out
	}
	var walk func(idx int32) bool
	walk = func(idx int32) bool {
		nodesVisited++
		n := &b.nodes[idx]
		if !q.IntersectsAABB(n.bounds) {
			return true
		}
		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				if !b.filterPrimitive(p, filter) {
					continue
				}
				objectsTested++
				if q.IntersectsAABB(p.bounds) {
					out = append(out, p.id)
				}
			}
			return true
		}
		if !walk(n.leftFirst) {
			return false
		}
		return walk(n.rightChild)
	}
	walk(0)
	b.recordQuery(start, nodesVisited, objectsTested, len(out))
	return out
}

func (b *BVH) VisitAABB(q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	nodesVisited, objectsTested := 0, 0
	returned := 0
	b.visitAABB(q, filter, func(id uint64) bool {
		returned++
		return visit(id)
	}, &nodesVisited, &objectsTested)
	b.recordQuery(start, nodesVisited, objectsTested, returned)
}

func (b *BVH) visitAABB(q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc, nodesVisited, objectsTested *int) {
	b.ensureBuilt()
	if len(b.nodes) == 0 {
		return
	}
	var walk func(idx int32) bool
	walk = func(idx int32) bool {
		*nodesVisited++
		n := &b.nodes[idx]
		if !n.bounds.IntersectsAABB(q) {
			return true
		}
		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				if !b.filterPrimitive(p, filter) {
					continue
				}
				*objectsTested++
				if p.bounds.IntersectsAABB(q) {
					if !visit(p.id) {
						return false
					}
				}
			}
			return true
		}
		if !walk(n.leftFirst) {
			return false
		}
		return walk(n.rightChild)
	}
	walk(0)
}

func (b *BVH) VisitSphere(q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	nodesVisited, objectsTested := 0, 0
	returned := 0
	b.visitSphere(q, filter, func(id uint64) bool {
		returned++
		return visit(id)
	}, &nodesVisited, &objectsTested)
	b.recordQuery(start, nodesVisited, objectsTested, returned)
}

func (b *BVH) visitSphere(q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc, nodesVisited, objectsTested *int) {
	b.ensureBuilt()
	if len(b.nodes) == 0 {
		return
	}
	var walk func(idx int32) bool
	walk = func(idx int32) bool {
		*nodesVisited++
		n := &b.nodes[idx]
		if !n.bounds.IntersectsSphere(q) {
			return true
		}
		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				if !b.filterPrimitive(p, filter) {
					continue
				}
				*objectsTested++
				if p.bounds.IntersectsSphere(q) {
					if !visit(p.id) {
						return false
					}
				}
			}
			return true
		}
		if !walk(n.leftFirst) {
			return false
		}
		return walk(n.rightChild)
	}
	walk(0)
}

// QueryRay performs a near-child-first descent: at each internal node it
// tests both children's entry-t and recurses into the closer one first,
// skipping the farther if its entry-t already exceeds maxT. Hits are
// collected from every leaf the ray meets and sorted by distance before
// return, per spec §4.2's "sorted list of hits" contract.
func (b *BVH) QueryRay(ray bounds.Ray, maxT float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	b.ensureBuilt()
	var hits []spatialindex.RayHit
	nodesVisited, objectsTested := 0, 0
	if len(b.nodes) == 0 {
		b.recordQuery(start, 0, 0, 0)
		return hits
	}

	type frame struct {
		idx int32
	}
	stack := []frame{{idx: 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodesVisited++
		n := &b.nodes[top.idx]

		hit, dist := n.bounds.IntersectRay(ray)
		if !hit || dist > maxT {
			continue
		}

		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				if !b.filterPrimitive(p, filter) {
					continue
				}
				objectsTested++
				if h, d := p.bounds.IntersectRay(ray); h && d <= maxT {
					hits = append(hits, spatialindex.RayHit{ID: p.id, Distance: d})
				}
			}
			continue
		}

		leftHit, leftT := b.nodes[n.leftFirst].bounds.IntersectRay(ray)
		rightHit, rightT := b.nodes[n.rightChild].bounds.IntersectRay(ray)

		// Push farther child first so the nearer one pops (and is
		// descended into) first.
		if leftHit && rightHit {
			if leftT <= rightT {
				stack = append(stack, frame{idx: n.rightChild}, frame{idx: n.leftFirst})
			} else {
				stack = append(stack, frame{idx: n.leftFirst}, frame{idx: n.rightChild})
			}
		} else if leftHit {
			stack = append(stack, frame{idx: n.leftFirst})
		} else if rightHit {
			stack = append(stack, frame{idx: n.rightChild})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	b.recordQuery(start, nodesVisited, objectsTested, len(hits))
	return hits
}

func (b *BVH) QueryNearest(point vecmath.Vector3, maxDist float64, filter spatialindex.Filter) uint64 {
	res := b.QueryKNearest(point, 1, maxDist, filter)
	if len(res) == 0 {
		return spatialindex.SentinelID
	}
	return res[0].ID
}

func (b *BVH) QueryKNearest(point vecmath.Vector3, k int, maxDist float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	b.ensureBuilt()
	if k <= 0 || len(b.nodes) == 0 {
		b.recordQuery(start, 0, 0, 0)
		return nil
	}

	radiusSq := maxDist * maxDist
	var candidates []spatialindex.RayHit
	nodesVisited, objectsTested := 0, 0

	var walk func(idx int32)
	walk = func(idx int32) {
		nodesVisited++
		n := &b.nodes[idx]
		if n.bounds.DistanceSquared(point) > radiusSq {
			return
		}
		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				if !b.filterPrimitive(p, filter) {
					continue
				}
				objectsTested++
				d2 := p.bounds.DistanceSquared(point)
				if d2 > radiusSq {
					continue
				}
				candidates = append(candidates, spatialindex.RayHit{ID: p.id, Distance: math.Sqrt(d2)})
				if len(candidates) > k*4 {
					sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
					candidates = candidates[:k]
					worst := candidates[k-1].Distance
					radiusSq = worst * worst
				}
			}
			return
		}

		leftDist := b.nodes[n.leftFirst].bounds.DistanceSquared(point)
		rightDist := b.nodes[n.rightChild].bounds.DistanceSquared(point)
		if leftDist <= rightDist {
			walk(n.leftFirst)
			walk(n.rightChild)
		} else {
			walk(n.rightChild)
			walk(n.leftFirst)
		}
	}
	walk(0)

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	b.recordQuery(start, nodesVisited, objectsTested, len(candidates))
	return candidates
}

// Validate checks the structural invariants spec §8 items 7-10 name for
// a BVH and returns one description per violation (nil means sound):
// every internal node's bounds contain both children's, every primitive
// id appears in exactly one leaf, and the SAH cost is finite and
// non-negative.
func (b *BVH) Validate() []string {
	b.ensureBuilt()
	var issues []string
	if len(b.nodes) == 0 {
		return issues
	}

	seen := make(map[uint64]int, len(b.primitives))
	var walk func(idx int32)
	walk = func(idx int32) {
		n := &b.nodes[idx]
		if n.isLeaf() {
			for i := int32(0); i < n.primitiveCount; i++ {
				p := &b.primitives[b.primIndex[n.leftFirst+i]]
				seen[p.id]++
				if !n.bounds.ContainsAABB(p.bounds) {
					issues = append(issues, fmt.Sprintf("leaf node %d bounds do not contain primitive %d", idx, p.id))
				}
			}
			return
		}
		left, right := &b.nodes[n.leftFirst], &b.nodes[n.rightChild]
		if !n.bounds.ContainsAABB(left.bounds) {
			issues = append(issues, fmt.Sprintf("node %d bounds do not contain left child %d", idx, n.leftFirst))
		}
		if !n.bounds.ContainsAABB(right.bounds) {
			issues = append(issues, fmt.Sprintf("node %d bounds do not contain right child %d", idx, n.rightChild))
		}
		walk(n.leftFirst)
		walk(n.rightChild)
	}
	walk(0)

	for _, p := range b.primitives {
		if seen[p.id] != 1 {
			issues = append(issues, fmt.Sprintf("primitive %d appears in %d leaves, expected exactly 1", p.id, seen[p.id]))
		}
	}

	if cost := b.computeTreeSAHCost(); math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		issues = append(issues, fmt.Sprintf("SAH cost is not finite/non-negative: %v", cost))
	}

	return issues
}

func (b *BVH) GetMemoryUsage() uintptr {
	return uintptr(len(b.nodes))*32 + uintptr(len(b.primitives))*64
}

func (b *BVH) GetTypeName() string { return "BVH" }

// SupportsMovingObjects is true: Update marks needsRebuild and the next
// query lazily rebuilds, but Refit is also available for cheaper
// incremental maintenance.
func (b *BVH) SupportsMovingObjects() bool { return true }

func (b *BVH) GetLastQueryStats() spatialindex.Stats { return b.lastStats }
