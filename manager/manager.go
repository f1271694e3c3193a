// Package manager provides the spatial acceleration facade: one primary
// index plus optional per-layer sub-indices, a per-frame query cache,
// and per-query-type metrics.
package manager

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/spatialindex/bvh"
	"github.com/nova3d/spatial/spatialindex/hash"
	"github.com/nova3d/spatial/spatialindex/octree"
	"github.com/nova3d/spatial/vecmath"
)

// IndexType names a backend selectable by Config or OptimizeIndices.
type IndexType int

const (
	IndexBVH IndexType = iota
	IndexLooseOctree
	IndexSpatialHash
)

func (t IndexType) String() string {
	switch t {
	case IndexBVH:
		return "BVH"
	case IndexLooseOctree:
		return "LooseOctree"
	case IndexSpatialHash:
		return "SpatialHash"
	default:
		return "Unknown"
	}
}

// Config configures a Manager's primary index and optimization behavior.
type Config struct {
	WorldBounds     bounds.AABB
	InitialType     IndexType
	HashConfig      hash.Config
	OctreeConfig    octree.Config
	BVHConfig       bvh.Config
	Logger          *zap.Logger
	MetricsRegistry prometheus.Registerer // nil uses the default global registry
}

func buildIndex(t IndexType, cfg Config) spatialindex.Index {
	switch t {
	case IndexSpatialHash:
		hc := cfg.HashConfig
		if hc.CellSize <= 0 {
			hc.CellSize = 4
		}
		return hash.New(hc)
	case IndexLooseOctree:
		oc := cfg.OctreeConfig
		oc.WorldBounds = cfg.WorldBounds
		if oc.LooseFactor <= 1 {
			oc.LooseFactor = 1.5
		}
		return octree.New(oc)
	default:
		return bvh.New(cfg.BVHConfig)
	}
}

type metrics struct {
	queryTotal        *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	nodesVisitedTotal  *prometheus.CounterVec
	objectsTestedTotal *prometheus.CounterVec
	indexObjectCount   *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &metrics{
		queryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spatial_query_total",
			Help: "Total spatial queries by kind.",
		}, []string{"kind", "layer"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spatial_query_duration_seconds",
			Help:    "Spatial query latency by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		nodesVisitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spatial_nodes_visited_total",
			Help: "Total index nodes visited servicing queries.",
		}, []string{"kind"}),
		objectsTestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spatial_objects_tested_total",
			Help: "Total objects tested servicing queries.",
		}, []string{"kind"}),
		indexObjectCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spatial_index_object_count",
			Help: "Objects currently tracked by an index.",
		}, []string{"index"}),
	}
}

// cacheEntry holds a cached query's result alongside enough of the
// original query to verify a hash-bucket hit is actually the same
// query before trusting it — cacheKey's hash is lossy-ish by
// construction (fixed-width mixing of variable query shapes), so two
// distinct queries can land on the same key; query equality is what
// keeps that from ever returning the wrong ids.
type cacheEntry struct {
	epoch     int64
	kind      string
	layerMask uint64
	excludeID uint64
	query     any
	ids       []uint64
}

// Manager is the spatial acceleration facade. Queries take a shared lock,
// mutations an exclusive lock (spec §4.6/§5).
type Manager struct {
	cfg Config
	log *zap.Logger

	mu         sync.RWMutex
	primary    spatialindex.Index
	primaryTyp IndexType
	subIndexes map[int]spatialindex.Index // per-layer sub-indices, optional
	objLayers  map[uint64]int             // tracked so OptimizeIndices can re-insert with the right layer

	epoch int64 // bumped on every mutation; invalidates cache wholesale
	cache sync.Map // paramHash -> *cacheEntry

	metrics *metrics
}

// New builds a Manager with a primary index of cfg.InitialType.
func New(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		log:        log,
		primary:    buildIndex(cfg.InitialType, cfg),
		primaryTyp: cfg.InitialType,
		subIndexes: make(map[int]spatialindex.Index),
		objLayers:  make(map[uint64]int),
		metrics:    newMetrics(cfg.MetricsRegistry),
	}
	return m
}

// bumpEpoch invalidates the query cache wholesale (Open Question decision
// #1 — see DESIGN.md). Callers must hold mu for writing.
func (m *Manager) bumpEpoch() {
	m.epoch++
}

func (m *Manager) Insert(id uint64, a bounds.AABB, layer int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primary.Insert(id, a, layer)
	if sub, ok := m.subIndexes[layer]; ok {
		sub.Insert(id, a, layer)
	}
	m.objLayers[id] = layer
	m.bumpEpoch()
	m.metrics.indexObjectCount.WithLabelValues(m.primaryTyp.String()).Set(float64(m.primary.GetObjectCount()))
}

func (m *Manager) Remove(id uint64, layer int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := m.primary.Remove(id)
	if sub, exists := m.subIndexes[layer]; exists {
		sub.Remove(id)
	}
	delete(m.objLayers, id)
	m.bumpEpoch()
	m.metrics.indexObjectCount.WithLabelValues(m.primaryTyp.String()).Set(float64(m.primary.GetObjectCount()))
	return ok
}

func (m *Manager) Update(id uint64, a bounds.AABB, layer int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := m.primary.Update(id, a)
	if sub, exists := m.subIndexes[layer]; exists {
		sub.Update(id, a)
	}
	m.bumpEpoch()
	return ok
}

// RegisterLayerIndex attaches an independent sub-index scoped to one
// layer — queries against that layer alone may prefer it over a full
// primary-index scan (the domain wrapper's terrain-only raycast is the
// motivating case, spec §4.7).
func (m *Manager) RegisterLayerIndex(layer int, idx spatialindex.Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subIndexes[layer] = idx
}

func (m *Manager) cacheKey(kind string, layerMask uint64, paramHash uint64) uint64 {
	h := uint64(1469598103934665603)
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211
	}
	for _, b := range []byte(kind) {
		mix(uint64(b))
	}
	mix(layerMask)
	mix(paramHash)
	return h
}

// cacheGet returns the cached ids for key only if the entry is from the
// current epoch AND its recorded query exactly matches (kind, layerMask,
// excludeID, query) — guarding against two distinct queries colliding on
// the same cacheKey hash and silently swapping results.
func (m *Manager) cacheGet(key uint64, epoch int64, kind string, layerMask, excludeID uint64, query any) ([]uint64, bool) {
	v, ok := m.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(*cacheEntry)
	if entry.epoch != epoch || entry.kind != kind || entry.layerMask != layerMask || entry.excludeID != excludeID {
		return nil, false
	}
	if entry.query != query {
		return nil, false
	}
	return entry.ids, true
}

func (m *Manager) cachePut(key uint64, epoch int64, kind string, layerMask, excludeID uint64, query any, ids []uint64) {
	m.cache.Store(key, &cacheEntry{epoch: epoch, kind: kind, layerMask: layerMask, excludeID: excludeID, query: query, ids: ids})
}

// QueryAABB runs a cached AABB query against the primary index.
func (m *Manager) QueryAABB(q bounds.AABB, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	epoch := m.epoch
	key := m.cacheKey("aabb", filter.LayerMask, aabbHash(q)^filter.ExcludeID)
	if ids, ok := m.cacheGet(key, epoch, "aabb", filter.LayerMask, filter.ExcludeID, q); ok {
		m.metrics.queryTotal.WithLabelValues("aabb", "cached").Inc()
		return ids
	}

	ids := m.primary.QueryAABB(q, filter)
	m.cachePut(key, epoch, "aabb", filter.LayerMask, filter.ExcludeID, q, ids)
	m.recordStats("aabb", start)
	return ids
}

func (m *Manager) QuerySphere(q bounds.Sphere, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	epoch := m.epoch
	key := m.cacheKey("sphere", filter.LayerMask, sphereHash(q)^filter.ExcludeID)
	if ids, ok := m.cacheGet(key, epoch, "sphere", filter.LayerMask, filter.ExcludeID, q); ok {
		m.metrics.queryTotal.WithLabelValues("sphere", "cached").Inc()
		return ids
	}

	ids := m.primary.QuerySphere(q, filter)
	m.cachePut(key, epoch, "sphere", filter.LayerMask, filter.ExcludeID, q, ids)
	m.recordStats("sphere", start)
	return ids
}

func (m *Manager) QueryFrustum(f *bounds.Frustum, filter spatialindex.Filter) []uint64 {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.primary.QueryFrustum(f, filter)
	m.recordStats("frustum", start)
	return ids
}

func (m *Manager) QueryRay(ray bounds.Ray, maxT float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := m.primary.QueryRay(ray, maxT, filter)
	m.recordStats("ray", start)
	return hits
}

// QueryLayerRay prefers a registered sub-index for layer if one exists,
// falling back to the primary index with a layer-filtered mask.
func (m *Manager) QueryLayerRay(layer int, ray bounds.Ray, maxT float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subIndexes[layer]; ok {
		hits := sub.QueryRay(ray, maxT, filter)
		m.recordStats("ray_layer", start)
		return hits
	}
	filter.LayerMask &= uint64(1) << uint(layer)
	hits := m.primary.QueryRay(ray, maxT, filter)
	m.recordStats("ray", start)
	return hits
}

func (m *Manager) QueryNearest(point vecmath.Vector3, maxDist float64, filter spatialindex.Filter) uint64 {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := m.primary.QueryNearest(point, maxDist, filter)
	m.recordStats("nearest", start)
	return id
}

func (m *Manager) QueryKNearest(point vecmath.Vector3, k int, maxDist float64, filter spatialindex.Filter) []spatialindex.RayHit {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := m.primary.QueryKNearest(point, k, maxDist, filter)
	m.recordStats("knearest", start)
	return hits
}

func (m *Manager) VisitAABB(q bounds.AABB, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.primary.VisitAABB(q, filter, visit)
	m.recordStats("aabb_visit", start)
}

func (m *Manager) VisitSphere(q bounds.Sphere, filter spatialindex.Filter, visit spatialindex.VisitorFunc) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.primary.VisitSphere(q, filter, visit)
	m.recordStats("sphere_visit", start)
}

func (m *Manager) recordStats(kind string, start time.Time) {
	m.metrics.queryTotal.WithLabelValues(kind, "live").Inc()
	m.metrics.queryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	st := m.primary.GetLastQueryStats()
	m.metrics.nodesVisitedTotal.WithLabelValues(kind).Add(float64(st.TotalNodesVisited))
	m.metrics.objectsTestedTotal.WithLabelValues(kind).Add(float64(st.TotalObjectsTested))
}

// aabbHash/sphereHash/floatBits only need to pick a cacheKey bucket —
// cacheGet verifies the original query before trusting a hit, so a
// collision here costs a cache miss, never a wrong result. floatBits
// still uses the full float64 bit pattern (not a truncated/quantized
// value) so that picking a good bucket doesn't itself need rounding
// semantics, and each axis is run through the same FNV-style mix
// cacheKey uses instead of a raw shifted XOR, which otherwise lets
// some coordinate combinations cancel out.
func aabbHash(a bounds.AABB) uint64 {
	h := uint64(1469598103934665603)
	for _, f := range [...]float64{a.Min.X, a.Min.Y, a.Min.Z, a.Max.X, a.Max.Y, a.Max.Z} {
		h ^= floatBits(f)
		h *= 1099511628211
	}
	return h
}

func sphereHash(s bounds.Sphere) uint64 {
	h := uint64(1469598103934665603)
	for _, f := range [...]float64{s.Center.X, s.Center.Y, s.Center.Z, s.Radius} {
		h ^= floatBits(f)
		h *= 1099511628211
	}
	return h
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

// Sample describes the object-population signal OptimizeIndices uses to
// pick a recommended backend (spec §4.6's table).
type Sample struct {
	ObjectCount  int
	AvgObjectDim float64
	WorldDim     float64
	Dynamic      bool
}

// RecommendIndexType applies spec §4.6's signal table.
func RecommendIndexType(s Sample) IndexType {
	if s.ObjectCount < 100 {
		return IndexBVH
	}
	if s.WorldDim > 0 && s.ObjectCount > 1000 && s.AvgObjectDim/s.WorldDim < 0.01 {
		return IndexSpatialHash
	}
	if s.ObjectCount > 500 && s.Dynamic {
		return IndexLooseOctree
	}
	return IndexBVH
}

// OptimizeIndices applies RecommendIndexType to the caller-supplied
// sample and, if it names a different backend, rebuilds the primary index
// into that type. The object distribution is not measured here; sample is
// taken as given. Rebuild copies every object out of the old index and into a
// freshly built one of the recommended type.
func (m *Manager) OptimizeIndices(sample Sample) bool {
	recommended := RecommendIndexType(sample)

	m.mu.Lock()
	defer m.mu.Unlock()

	if recommended == m.primaryTyp {
		return false
	}

	m.log.Info("rebuilding primary spatial index",
		zap.String("from", m.primaryTyp.String()),
		zap.String("to", recommended.String()),
		zap.Int("objectCount", sample.ObjectCount))

	newIndex := buildIndex(recommended, m.cfg)
	m.primary.VisitAABB(m.primary.GetBounds(), spatialindex.MatchAllLayers(), func(id uint64) bool {
		newIndex.Insert(id, m.primary.GetObjectBounds(id), m.objLayers[id])
		return true
	})

	m.primary = newIndex
	m.primaryTyp = recommended
	m.bumpEpoch()
	return true
}

// RebuildLayerIndexesConcurrently rebuilds every registered per-layer
// sub-index in parallel — used after a batch of mutations when many
// layers' sub-indices need a fresh Rebuild (BVH/octree drift).
func (m *Manager) RebuildLayerIndexesConcurrently() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var g errgroup.Group
	for layer, idx := range m.subIndexes {
		layer, idx := layer, idx
		g.Go(func() error {
			if rebuilder, ok := idx.(interface{ Rebuild() }); ok {
				rebuilder.Rebuild()
			}
			m.log.Debug("rebuilt layer sub-index", zap.Int("layer", layer), zap.String("type", idx.GetTypeName()))
			return nil
		})
	}
	return g.Wait()
}

// GetObjectBounds returns id's current bounds in the primary index, or
// an invalid AABB (Min +Inf, Max -Inf) if id is not tracked.
func (m *Manager) GetObjectBounds(id uint64) bounds.AABB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.GetObjectBounds(id)
}

// Contains reports whether id is tracked by the primary index.
func (m *Manager) Contains(id uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.Contains(id)
}

// Stats returns the primary index's most recent per-query statistics.
func (m *Manager) Stats() spatialindex.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.GetLastQueryStats()
}

// PrimaryType reports which backend currently serves as the primary index.
func (m *Manager) PrimaryType() IndexType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primaryTyp
}
