package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/spatialindex/bvh"
	"github.com/nova3d/spatial/vecmath"
)

func box(center vecmath.Vector3, half float64) bounds.AABB {
	h := vecmath.Vector3{X: half, Y: half, Z: half}
	return bounds.AABB{Min: center.Sub(h), Max: center.Add(h)}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := prometheusTestRegistry()
	m := New(Config{
		WorldBounds:     box(vecmath.Vector3{}, 1000),
		InitialType:     IndexBVH,
		BVHConfig:       bvh.Config{MaxPrimitivesPerLeaf: 2},
		MetricsRegistry: reg,
	})
	return m
}

func TestManagerInsertQuerySphere(t *testing.T) {
	m := newTestManager(t)
	m.Insert(1, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 0)
	m.Insert(2, box(vecmath.Vector3{X: 5, Y: 0, Z: 0}, 0.5), 0)
	m.Insert(3, box(vecmath.Vector3{X: 20, Y: 0, Z: 0}, 0.5), 0)

	got := m.QuerySphere(bounds.Sphere{Center: vecmath.Vector3{}, Radius: 10}, spatialindex.MatchAllLayers())
	assert.ElementsMatch(t, []uint64{1, 2}, got)
}

func TestManagerQueryCacheInvalidatedByMutation(t *testing.T) {
	m := newTestManager(t)
	m.Insert(1, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 0)

	q := box(vecmath.Vector3{}, 5)
	first := m.QueryAABB(q, spatialindex.MatchAllLayers())
	assert.Len(t, first, 1)

	m.Insert(2, box(vecmath.Vector3{X: 1, Y: 0, Z: 0}, 0.5), 0)
	second := m.QueryAABB(q, spatialindex.MatchAllLayers())
	assert.Len(t, second, 2)
}

func TestManagerStatsPopulatedAfterQuery(t *testing.T) {
	m := newTestManager(t)
	m.Insert(1, box(vecmath.Vector3{}, 0.5), 0)
	m.Insert(2, box(vecmath.Vector3{X: 5}, 0.5), 0)

	got := m.QueryAABB(box(vecmath.Vector3{}, 10), spatialindex.MatchAllLayers())
	require.Len(t, got, 2)

	st := m.Stats()
	assert.Equal(t, uint64(2), st.TotalObjectsReturn)
	assert.Greater(t, st.TotalObjectsTested, uint64(0))
}

// TestManagerQueryCacheDistinguishesNearIdenticalQueries guards against
// the cache returning a neighboring query's result: two AABB queries
// differing by under a thousandth of a unit must still be resolved
// against the real geometry, not against whichever one happened to
// populate the cache bucket first.
func TestManagerQueryCacheDistinguishesNearIdenticalQueries(t *testing.T) {
	m := newTestManager(t)
	m.Insert(1, bounds.AABB{
		Min: vecmath.Vector3{X: 10.0005, Y: -0.1, Z: -0.1},
		Max: vecmath.Vector3{X: 10.0006, Y: 0.1, Z: 0.1},
	}, 0)

	qNarrow := bounds.AABB{Min: vecmath.Vector3{X: 0, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 10.0, Y: 1, Z: 1}}
	qWide := bounds.AABB{Min: vecmath.Vector3{X: 0, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 10.00099, Y: 1, Z: 1}}

	gotNarrow := m.QueryAABB(qNarrow, spatialindex.MatchAllLayers())
	gotWide := m.QueryAABB(qWide, spatialindex.MatchAllLayers())

	assert.Empty(t, gotNarrow)
	assert.Equal(t, []uint64{1}, gotWide)
}

func TestManagerRemoveAndUpdate(t *testing.T) {
	m := newTestManager(t)
	m.Insert(1, box(vecmath.Vector3{}, 0.5), 0)
	require.True(t, m.Contains(1))

	moved := box(vecmath.Vector3{X: 10, Y: 0, Z: 0}, 0.5)
	require.True(t, m.Update(1, moved, 0))
	assert.Equal(t, moved, m.GetObjectBounds(1))

	require.True(t, m.Remove(1, 0))
	assert.False(t, m.Contains(1))
	assert.False(t, m.Remove(1, 0))
}

func TestRecommendIndexType(t *testing.T) {
	assert.Equal(t, IndexBVH, RecommendIndexType(Sample{ObjectCount: 50}))
	assert.Equal(t, IndexSpatialHash, RecommendIndexType(Sample{ObjectCount: 5000, AvgObjectDim: 1, WorldDim: 1000}))
	assert.Equal(t, IndexLooseOctree, RecommendIndexType(Sample{ObjectCount: 600, Dynamic: true}))
}

func TestOptimizeIndicesRebuildsWhenRecommended(t *testing.T) {
	m := newTestManager(t)
	for i := uint64(0); i < 5; i++ {
		m.Insert(i, box(vecmath.Vector3{X: float64(i), Y: 0, Z: 0}, 0.5), 0)
	}
	require.Equal(t, IndexBVH, m.PrimaryType())

	changed := m.OptimizeIndices(Sample{ObjectCount: 600, Dynamic: true})
	assert.True(t, changed)
	assert.Equal(t, IndexLooseOctree, m.PrimaryType())
	assert.Equal(t, 5, m.primary.GetObjectCount())
}

func TestRegisterLayerIndexAndQueryLayerRay(t *testing.T) {
	m := newTestManager(t)
	layerIdx := bvh.New(bvh.Config{MaxPrimitivesPerLeaf: 2})
	m.RegisterLayerIndex(3, layerIdx)

	m.Insert(1, box(vecmath.Vector3{X: 5, Y: 0, Z: 0}, 1), 3)

	ray := bounds.NewRay(vecmath.Vector3{}, vecmath.Vector3{X: 1, Y: 0, Z: 0})
	hits := m.QueryLayerRay(3, ray, 100, spatialindex.MatchAllLayers())
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(1), hits[0].ID)
}

func TestRebuildLayerIndexesConcurrently(t *testing.T) {
	m := newTestManager(t)
	layerIdx := bvh.New(bvh.Config{MaxPrimitivesPerLeaf: 2})
	m.RegisterLayerIndex(1, layerIdx)
	m.Insert(1, box(vecmath.Vector3{}, 1), 1)

	err := m.RebuildLayerIndexesConcurrently()
	require.NoError(t, err)
}
