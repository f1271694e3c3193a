// Package hash implements the uniform spatial hash index variant: an
// open 3D grid offering O(1) insert/move, DDA ray marching, and optional
// multi-resolution levels for widely varying object sizes.
package hash

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

const (
	prime1 = 73856093
	prime2 = 19349663
	prime3 = 83492791
)

type cellKey struct {
	x, y, z int32
}

func hashCell(c cellKey) uint64 {
	return uint64(c.x)*prime1 ^ uint64(c.y)*prime2 ^ uint64(c.z)*prime3
}

func cellCoord(v float64, cellSize float64) int32 {
	return int32(math.Floor(v / cellSize))
}

type objectRecord struct {
	id     uint64
	bounds bounds.AABB
	layer  int
	level  int
	cells  []cellKey
}

// level is one resolution grid: cellSize·2^levelIndex, holding the
// cell → object-id-list table for that resolution.
type level struct {
	cellSize float64
	cells    map[uint64][]uint64
}

func newLevel(cellSize float64) *level {
	return &level{cellSize: cellSize, cells: make(map[uint64][]uint64)}
}

func (lv *level) cellsFor(a bounds.AABB) []cellKey {
	minC := cellKey{cellCoord(a.Min.X, lv.cellSize), cellCoord(a.Min.Y, lv.cellSize), cellCoord(a.Min.Z, lv.cellSize)}
	maxC := cellKey{cellCoord(a.Max.X, lv.cellSize), cellCoord(a.Max.Y, lv.cellSize), cellCoord(a.Max.Z, lv.cellSize)}

	var out []cellKey
	for x := minC.x; x <= maxC.x; x++ {
		for y := minC.y; y <= maxC.y; y++ {
			for z := minC.z; z <= maxC.z; z++ {
				out = append(out, cellKey{x, y, z})
			}
		}
	}
	return out
}

func (lv *level) add(id uint64, c cellKey) {
	k := hashCell(c)
	lv.cells[k] = append(lv.cells[k], id)
}

func (lv *level) removeFrom(id uint64, c cellKey) {
	k := hashCell(c)
	ids := lv.cells[k]
	for i, existing := range ids {
		if existing == id {
			ids[i] = ids[len(ids)-1]
			lv.cells[k] = ids[:len(ids)-1]
			break
		}
	}
	if len(lv.cells[k]) == 0 {
		delete(lv.cells, k)
	}
}

// Hash is the uniform spatial hash index. Not internally thread-safe —
// the manager facade serializes mutations behind its reader-writer lock
// (spec §5).
type Hash struct {
	baseCellSize float64
	levels       []*level
	objects      map[uint64]*objectRecord
	worldBounds  bounds.AABB
	lastStats    spatialindex.Stats
}

// Config configures a Hash index's cell size and resolution levels.
type Config struct {
	CellSize            float64
	NumResolutionLevels  int
}

// New builds a uniform spatial hash with the given base cell size and
// resolution level count (>=1).
func New(cfg Config) *Hash {
	if cfg.NumResolutionLevels < 1 {
		cfg.NumResolutionLevels = 1
	}
	h := &Hash{
		baseCellSize: cfg.CellSize,
		objects:      make(map[uint64]*objectRecord),
	}
	for i := 0; i < cfg.NumResolutionLevels; i++ {
		h.levels = append(h.levels, newLevel(cfg.CellSize*math.Pow(2, float64(i))))
	}
	return h
}

// chooseLevel selects the resolution level so the object fits in
// roughly 1–4 cells at that level, based on its longest bound dimension.
func (h *Hash) chooseLevel(a bounds.AABB) int {
	size := a.Size()
	longest := math.Max(size.X, math.Max(size.Y, size.Z))
	for i, lv := range h.levels {
		if longest <= lv.cellSize*2 || i == len(h.levels)-1 {
			return i
		}
	}
	return len(h.levels) - 1
}

func (h *Hash) Insert(id uint64, a bounds.AABB, layer int) {
	if existing, ok := h.objects[id]; ok {
		_ = existing
		h.Update(id, a)
		return
	}

	levelIdx := h.chooseLevel(a)
	lv := h.levels[levelIdx]
	cells := lv.cellsFor(a)

	rec := &objectRecord{id: id, bounds: a, layer: layer, level: levelIdx, cells: cells}
	for _, c := range cells {
		lv.add(id, c)
	}
	h.objects[id] = rec
	h.worldBounds = h.worldBounds.Union(a)
}

func (h *Hash) Remove(id uint64) bool {
	rec, ok := h.objects[id]
	if !ok {
		return false
	}
	lv := h.levels[rec.level]
	for _, c := range rec.cells {
		lv.removeFrom(id, c)
	}
	delete(h.objects, id)
	return true
}

func (h *Hash) Update(id uint64, a bounds.AABB) bool {
	rec, ok := h.objects[id]
	if !ok {
		return false
	}

	newLevelIdx := h.chooseLevel(a)
	newLv := h.levels[newLevelIdx]
	newCells := newLv.cellsFor(a)

	if newLevelIdx == rec.level {
		oldSet := make(map[cellKey]bool, len(rec.cells))
		for _, c := range rec.cells {
			oldSet[c] = true
		}
		newSet := make(map[cellKey]bool, len(newCells))
		for _, c := range newCells {
			newSet[c] = true
		}
		for _, c := range rec.cells {
			if !newSet[c] {
				newLv.removeFrom(id, c)
			}
		}
		for _, c := range newCells {
			if !oldSet[c] {
				newLv.add(id, c)
			}
		}
	} else {
		oldLv := h.levels[rec.level]
		for _, c := range rec.cells {
			oldLv.removeFrom(id, c)
		}
		for _, c := range newCells {
			newLv.add(id, c)
		}
	}

	rec.bounds = a
	rec.level = newLevelIdx
	rec.cells = newCells
	h.worldBounds = h.worldBounds.Union(a)
	return true
}

func (h *Hash) Clear() {
	h.objects = make(map[uint64]*objectRecord)
	for _, lv := range h.levels {
		lv.cells = make(map[uint64][]uint64)
	}
	h.worldBounds = bounds.AABB{}
}

func (h *Hash) Contains(id uint64) bool {
	_, ok := h.objects[id]
	return ok
}

func (h *Hash) GetObjectBounds(id uint64) bounds.AABB {
	rec, ok := h.objects[id]
	if !ok {
		return bounds.AABB{Min: vecmath.Vector3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}, Max: vecmath.Vector3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}}
	}
	return rec.bounds
}

func (h *Hash) GetObjectCount() int { return len(h.objects) }

func (h *Hash) GetBounds() bounds.AABB { return h.worldBounds }

// candidatesFor gathers the deduplicated candidate ids across all levels
// whose cells overlap a, without filtering by exact shape, plus the
// number of cells it visited (the hash's stand-in for "nodes visited").
func (h *Hash) candidatesFor(a bounds.AABB) ([]uint64, int) {
	tested := make(map[uint64]bool)
	var out []uint64
	cellsVisited := 0
	for _, lv := range h.levels {
		for _, c := range lv.cellsFor(a) {
			cellsVisited++
			for _, id := range lv.cells[hashCell(c)] {
				if !tested[id] {
					tested[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out, cellsVisited
}

// recordQuery resets the four per-query Stats fields to this call's
// numbers and bumps the lifetime Count; start is the query's entry time.
func (h *Hash) recordQuery(start time.Time, nodesVisited, objectsTested, objectsReturned int) {
	h.lastStats.Count++
	h.lastStats.TotalTimeNanos = uint64(time.Since(start).Nanoseconds())
	h.lastStats.TotalNodesVisited = uint64(nodesVisited)
	h.lastStats.TotalObjectsTested = uint64(objectsTested)
	h.lastStats.TotalObjectsReturn = uint64(objectsReturned)
}

func (h *Hash) QueryAABB(q bounds.AABB, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	candidates, cellsVisited := h.candidatesFor(q)
	var out []uint64
	tested := 0
	for _, id := range candidates {
		rec := h.objects[id]
		if rec == nil || !filter.Passes(id, rec.layer) {
			continue
		}
		tested++
		if rec.bounds.IntersectsAABB(q) {
			out = append(out, id)
		}
	}
	h.recordQuery(start, cellsVisited, tested, len(out))
	return out
}

func (h *Hash) QuerySphere(q bounds.Sphere, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	candidates, cellsVisited := h.candidatesFor(q.Bounds())
	var out []uint64
	tested := 0
	for _, id := range candidates {
		rec := h.objects[id]
		if rec == nil || !filter.Passes(id, rec.layer) {
			continue
		}
		tested++
		if rec.bounds.IntersectsSphere(q) {
			out = append(out, id)
		}
	}
	h.recordQuery(start, cellsVisited, tested, len(out))
	return out
}

// QueryFrustum scans every object directly rather than through the grid
// (a frustum doesn't map onto axis-aligned cells cheaply), so it reports
// zero nodes visited and counts every filter-passing object as tested.
func (h *Hash) QueryFrustum(q *bounds.Frustum, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	var out []uint64
	tested := 0
	for id, rec := range h.objects {
		if !filter.Passes(id, rec.layer) {
			continue
		}
		tested++
		if q.IntersectsAABB(rec.bounds) {
			out = append(out, id)
		}
	}
	h.recordQuery(start, 0, tested, len(out))
	return out
}

// QueryRay marches the ray through each level's grid using the classical
// 3D DDA algorithm — stepping one cell face at a time along the axis of
// minimum tMax — testing every id in each visited cell that hasn't been
// tested yet, and terminating once t exceeds maxT.
func (h *Hash) QueryRay(ray bounds.Ray, maxT float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	tested := make(map[uint64]bool)
	var hits []spatialindex.RayHit
	cellsVisited := 0
	objectsTested := 0

	for _, lv := range h.levels {
		h.ddaLevel(lv, ray, maxT, filter, tested, &hits, &cellsVisited, &objectsTested)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	h.recordQuery(start, cellsVisited, objectsTested, len(hits))
	return hits
}

func (h *Hash) ddaLevel(lv *level, ray bounds.Ray, maxT float64, filter spatialindex.Filter, tested map[uint64]bool, hits *[]spatialindex.RayHit, cellsVisited, objectsTested *int) {
	cs := lv.cellSize
	cell := cellKey{cellCoord(ray.Origin.X, cs), cellCoord(ray.Origin.Y, cs), cellCoord(ray.Origin.Z, cs)}

	dir := [3]float64{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}
	origin := [3]float64{ray.Origin.X, ray.Origin.Y, ray.Origin.Z}
	cellIdx := [3]int32{cell.x, cell.y, cell.z}

	var step [3]int32
	var tMax, tDelta [3]float64

	for i := 0; i < 3; i++ {
		if dir[i] > 0 {
			step[i] = 1
			boundary := float64(cellIdx[i]+1) * cs
			tMax[i] = (boundary - origin[i]) / dir[i]
			tDelta[i] = cs / dir[i]
		} else if dir[i] < 0 {
			step[i] = -1
			boundary := float64(cellIdx[i]) * cs
			tMax[i] = (boundary - origin[i]) / dir[i]
			tDelta[i] = -cs / dir[i]
		} else {
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	t := 0.0
	for t <= maxT {
		*cellsVisited++
		k := hashCell(cellKey{cellIdx[0], cellIdx[1], cellIdx[2]})
		for _, id := range lv.cells[k] {
			if tested[id] {
				continue
			}
			tested[id] = true
			rec := h.objects[id]
			if rec == nil || !filter.Passes(id, rec.layer) {
				continue
			}
			*objectsTested++
			if hit, dist := rec.bounds.IntersectRay(ray); hit && dist <= maxT {
				*hits = append(*hits, spatialindex.RayHit{ID: id, Distance: dist})
			}
		}

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t = tMax[axis]
		cellIdx[axis] += step[axis]
		tMax[axis] += tDelta[axis]
	}
}

// QueryNearest returns the single nearest object within maxDist, or the
// sentinel id if none qualifies.
func (h *Hash) QueryNearest(point vecmath.Vector3, maxDist float64, filter spatialindex.Filter) uint64 {
	results := h.QueryKNearest(point, 1, maxDist, filter)
	if len(results) == 0 {
		return spatialindex.SentinelID
	}
	return results[0].ID
}

// QueryKNearest expands a shell of cells in cell coordinates around the
// query point's cell, growing the ring until the closest possible
// distance in the next untested shell exceeds the k-th best distance
// found so far (or maxDist is exceeded).
func (h *Hash) QueryKNearest(point vecmath.Vector3, k int, maxDist float64, filter spatialindex.Filter) []spatialindex.RayHit {
	if k <= 0 {
		return nil
	}

	start := time.Now()
	type cand struct {
		id   uint64
		dist float64
	}
	var found []cand
	tested := make(map[uint64]bool)
	cellsVisited := 0
	objectsTested := 0

	cs := h.primaryCellSize()
	center := cellKey{cellCoord(point.X, cs), cellCoord(point.Y, cs), cellCoord(point.Z, cs)}

	maxRing := int(math.Ceil(maxDist/cs)) + 1
	for ring := 0; ring <= maxRing; ring++ {
		shellMinDist := float64(ring-1) * cs
		if shellMinDist > maxDist {
			break
		}
		if len(found) >= k {
			sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
			if shellMinDist > found[k-1].dist {
				break
			}
		}

		for _, c := range ringCells(center, ring) {
			cellsVisited++
			for _, lv := range h.levels {
				for _, id := range lv.cells[hashCell(c)] {
					if tested[id] {
						continue
					}
					tested[id] = true
					rec := h.objects[id]
					if rec == nil || !filter.Passes(id, rec.layer) {
						continue
					}
					objectsTested++
					d := math.Sqrt(rec.bounds.DistanceSquared(point))
					if d <= maxDist {
						found = append(found, cand{id: id, dist: d})
					}
				}
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
	if len(found) > k {
		found = found[:k]
	}

	out := make([]spatialindex.RayHit, len(found))
	for i, c := range found {
		out[i] = spatialindex.RayHit{ID: c.id, Distance: c.dist}
	}
	h.recordQuery(start, cellsVisited, objectsTested, len(out))
	return out
}

func (h *Hash) primaryCellSize() float64 {
	return h.levels[0].cellSize
}

// ringCells returns the cells forming the surface of the cube of
// Chebyshev-radius ring around center (ring 0 = just center).
func ringCells(center cellKey, ring int) []cellKey {
	if ring == 0 {
		return []cellKey{center}
	}
	var out []cellKey
	r := int32(ring)
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				if abs32(x) != r && abs32(y) != r && abs32(z) != r {
					continue
				}
				out = append(out, cellKey{center.x + x, center.y + y, center.z + z})
			}
		}
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func (h *Hash) VisitAABB(q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	candidates, cellsVisited := h.candidatesFor(q)
	tested := 0
	returned := 0
	for _, id := range candidates {
		rec := h.objects[id]
		if rec == nil || !filter.Passes(id, rec.layer) {
			continue
		}
		tested++
		if !rec.bounds.IntersectsAABB(q) {
			continue
		}
		returned++
		if !visit(id) {
			break
		}
	}
	h.recordQuery(start, cellsVisited, tested, returned)
}

func (h *Hash) VisitSphere(q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	candidates, cellsVisited := h.candidatesFor(q.Bounds())
	tested := 0
	returned := 0
	for _, id := range candidates {
		rec := h.objects[id]
		if rec == nil || !filter.Passes(id, rec.layer) {
			continue
		}
		tested++
		if !rec.bounds.IntersectsSphere(q) {
			continue
		}
		returned++
		if !visit(id) {
			break
		}
	}
	h.recordQuery(start, cellsVisited, tested, returned)
}

// Validate checks spec §8 item 13 — every object's recorded cell list
// equals the set of cells its current bounds actually overlap at its
// assigned resolution level — and returns one description per violation
// (nil means sound).
func (h *Hash) Validate() []string {
	var issues []string
	for id, rec := range h.objects {
		lv := h.levels[rec.level]
		want := lv.cellsFor(rec.bounds)

		wantSet := make(map[cellKey]bool, len(want))
		for _, c := range want {
			wantSet[c] = true
		}
		gotSet := make(map[cellKey]bool, len(rec.cells))
		for _, c := range rec.cells {
			gotSet[c] = true
		}

		if len(wantSet) != len(gotSet) {
			issues = append(issues, fmt.Sprintf("object %d: recorded %d cells, bounds overlap %d", id, len(gotSet), len(wantSet)))
			continue
		}
		for c := range wantSet {
			if !gotSet[c] {
				issues = append(issues, fmt.Sprintf("object %d: recorded cell set does not match its bounds' overlap", id))
				break
			}
		}
	}
	return issues
}

func (h *Hash) GetMemoryUsage() uintptr {
	var total uintptr
	for _, lv := range h.levels {
		for _, ids := range lv.cells {
			total += uintptr(len(ids)) * 8
		}
	}
	total += uintptr(len(h.objects)) * 64
	return total
}

func (h *Hash) GetTypeName() string { return "UniformSpatialHash" }

// SupportsMovingObjects is true: updates are O(cells touched), not O(n).
func (h *Hash) SupportsMovingObjects() bool { return true }

func (h *Hash) GetLastQueryStats() spatialindex.Stats { return h.lastStats }
