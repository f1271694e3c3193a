// Package spatialindex defines the capability contract every spatial
// index backend (uniform hash, octree, BVH) satisfies, plus the query
// filter and per-query statistics types shared across backends.
package spatialindex

import (
	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/vecmath"
)

// SentinelID is returned by queries that find nothing where a single id
// is expected (e.g. QueryNearest on an empty index).
const SentinelID uint64 = 0

// Filter restricts which objects a query admits. An object passes iff
// (LayerMask bit at the object's layer) != 0 AND id != ExcludeID, where
// an ExcludeID of 0 excludes nothing. The
// zero Filter (mask 0, excludeID 0) admits nothing on layer alone, so
// callers build filters with MatchAllLayers or an explicit mask.
type Filter struct {
	LayerMask uint64
	ExcludeID uint64
}

// MatchAllLayers returns a filter admitting every layer and excluding no id.
func MatchAllLayers() Filter {
	return Filter{LayerMask: ^uint64(0)}
}

// WithExclude returns a copy of f excluding id.
func (f Filter) WithExclude(id uint64) Filter {
	f.ExcludeID = id
	return f
}

// Passes reports whether an object on the given layer with the given id
// satisfies f.
func (f Filter) Passes(id uint64, layer int) bool {
	if id == f.ExcludeID && f.ExcludeID != 0 {
		return false
	}
	return f.LayerMask&(uint64(1)<<uint(layer)) != 0
}

// RayHit is one result of a ray query: the hit object's id and the
// distance from the ray origin to the entry point.
type RayHit struct {
	ID       uint64
	Distance float64
}

// Stats describes one index instance's queries: Count is the lifetime
// number of queries served, while the other fields hold the numbers of
// the most recent query only. Read by the manager facade's metrics and by
// debug reports.
type Stats struct {
	Count              uint64
	TotalTimeNanos     uint64
	TotalNodesVisited  uint64
	TotalObjectsTested uint64
	TotalObjectsReturn uint64
}

// VisitorFunc is the callback form of AABB/sphere queries. Returning
// false stops traversal early; it performs no allocation beyond what
// the caller's closure captures.
type VisitorFunc func(id uint64) (keepGoing bool)

// Index is the capability set every spatial index backend implements.
// Duplicate Insert of an existing id is treated as Update. No operation
// returns an error: bad input yields the documented sentinel per method.
type Index interface {
	Insert(id uint64, bounds bounds.AABB, layer int)
	Remove(id uint64) bool
	Update(id uint64, bounds bounds.AABB) bool
	Clear()

	Contains(id uint64) bool
	GetObjectBounds(id uint64) bounds.AABB
	GetObjectCount() int
	GetBounds() bounds.AABB

	QueryAABB(q bounds.AABB, filter Filter) []uint64
	QuerySphere(q bounds.Sphere, filter Filter) []uint64
	QueryFrustum(q *bounds.Frustum, filter Filter) []uint64
	QueryRay(ray bounds.Ray, maxT float64, filter Filter) []RayHit
	QueryNearest(point vecmath.Vector3, maxDist float64, filter Filter) uint64
	QueryKNearest(point vecmath.Vector3, k int, maxDist float64, filter Filter) []RayHit

	VisitAABB(q bounds.AABB, filter Filter, visit VisitorFunc)
	VisitSphere(q bounds.Sphere, filter Filter, visit VisitorFunc)

	GetMemoryUsage() uintptr
	GetTypeName() string
	SupportsMovingObjects() bool
	GetLastQueryStats() Stats
}
