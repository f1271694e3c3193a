package hash

import (
	"testing"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

func box(center vecmath.Vector3, half float64) bounds.AABB {
	h := vecmath.Vector3{X: half, Y: half, Z: half}
	return bounds.AABB{Min: center.Sub(h), Max: center.Add(h)}
}

func newTestHash() *Hash {
	return New(Config{CellSize: 4, NumResolutionLevels: 2})
}

// TestQuerySphereFindsNearbyExcludesFar matches the sphere-query scenario:
// ids 1, 2, 3 at (0,0,0), (5,0,0), (20,0,0); a radius-10 sphere centered
// at the origin should return {1,2} but not 3.
func TestQuerySphereFindsNearbyExcludesFar(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 0)
	h.Insert(2, box(vecmath.Vector3{X: 5, Y: 0, Z: 0}, 0.5), 0)
	h.Insert(3, box(vecmath.Vector3{X: 20, Y: 0, Z: 0}, 0.5), 0)

	got := h.QuerySphere(bounds.Sphere{Center: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Radius: 10}, spatialindex.MatchAllLayers())

	set := map[uint64]bool{}
	for _, id := range got {
		set[id] = true
	}
	if !set[1] || !set[2] || set[3] {
		t.Errorf("QuerySphere = %v, want {1,2} only", got)
	}
}

// TestQueryRayOrdersHitsByDistance matches the ray-ordering scenario: ids
// 10, 11, 12 at (5,0,0), (15,0,0), (30,0,0) along a ray from the origin
// down +X, expecting hits ordered [10,11,12] with distances (4,14,29).
func TestQueryRayOrdersHitsByDistance(t *testing.T) {
	h := newTestHash()
	h.Insert(10, box(vecmath.Vector3{X: 5, Y: 0, Z: 0}, 1), 0)
	h.Insert(11, box(vecmath.Vector3{X: 15, Y: 0, Z: 0}, 1), 0)
	h.Insert(12, box(vecmath.Vector3{X: 30, Y: 0, Z: 0}, 1), 0)

	ray := bounds.NewRay(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0})
	hits := h.QueryRay(ray, 100, spatialindex.MatchAllLayers())

	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	wantIDs := []uint64{10, 11, 12}
	wantDist := []float64{4, 14, 29}
	for i, hit := range hits {
		if hit.ID != wantIDs[i] {
			t.Errorf("hits[%d].ID = %d, want %d", i, hit.ID, wantIDs[i])
		}
		if absDiff(hit.Distance, wantDist[i]) > 1e-9 {
			t.Errorf("hits[%d].Distance = %v, want %v", i, hit.Distance, wantDist[i])
		}
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// TestQueryLayerFilter matches the layer-filter scenario: id 100 on layer
// 1, id 200 on layer 2; a query admitting only layer 1 returns 100.
func TestQueryLayerFilter(t *testing.T) {
	h := newTestHash()
	h.Insert(100, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 1)
	h.Insert(200, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 2)

	filter := spatialindex.Filter{LayerMask: uint64(1) << 1}
	got := h.QueryAABB(box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 5), filter)

	if len(got) != 1 || got[0] != 100 {
		t.Errorf("QueryAABB(layer1) = %v, want [100]", got)
	}
}

func TestInsertUpdateRemove(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{}, 1), 0)
	if !h.Contains(1) {
		t.Fatal("Contains(1) = false after Insert")
	}
	if h.GetObjectCount() != 1 {
		t.Errorf("GetObjectCount() = %d, want 1", h.GetObjectCount())
	}

	moved := box(vecmath.Vector3{X: 50, Y: 50, Z: 50}, 1)
	if !h.Update(1, moved) {
		t.Fatal("Update(1) = false, want true")
	}
	if got := h.GetObjectBounds(1); got != moved {
		t.Errorf("GetObjectBounds(1) = %v, want %v", got, moved)
	}

	if !h.Remove(1) {
		t.Fatal("Remove(1) = false, want true")
	}
	if h.Contains(1) {
		t.Error("Contains(1) = true after Remove")
	}
	if h.Remove(1) {
		t.Error("Remove(1) second call = true, want false")
	}
}

func TestQueryNearestAndKNearest(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{X: 1, Y: 0, Z: 0}, 0.1), 0)
	h.Insert(2, box(vecmath.Vector3{X: 5, Y: 0, Z: 0}, 0.1), 0)
	h.Insert(3, box(vecmath.Vector3{X: 10, Y: 0, Z: 0}, 0.1), 0)

	nearest := h.QueryNearest(vecmath.Vector3{}, 100, spatialindex.MatchAllLayers())
	if nearest != 1 {
		t.Errorf("QueryNearest = %d, want 1", nearest)
	}

	k := h.QueryKNearest(vecmath.Vector3{}, 2, 100, spatialindex.MatchAllLayers())
	if len(k) != 2 || k[0].ID != 1 || k[1].ID != 2 {
		t.Errorf("QueryKNearest = %v, want [1,2]", k)
	}
}

func TestClear(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{}, 1), 0)
	h.Clear()
	if h.GetObjectCount() != 0 {
		t.Errorf("GetObjectCount() after Clear = %d, want 0", h.GetObjectCount())
	}
	if h.Contains(1) {
		t.Error("Contains(1) after Clear = true, want false")
	}
}

func TestValidateSound(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{X: 2, Y: 2, Z: 2}, 1), 0)
	h.Insert(2, box(vecmath.Vector3{X: -10, Y: 3, Z: 7}, 3), 0)
	h.Update(1, box(vecmath.Vector3{X: 40, Y: 1, Z: 1}, 0.5))

	if issues := h.Validate(); len(issues) != 0 {
		t.Errorf("Validate() = %v, want no issues", issues)
	}
}

func TestVisitAABBStopsEarly(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 0)
	h.Insert(2, box(vecmath.Vector3{X: 1, Y: 0, Z: 0}, 0.5), 0)

	visited := 0
	h.VisitAABB(box(vecmath.Vector3{}, 5), spatialindex.MatchAllLayers(), func(id uint64) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("visited = %d, want 1 (stop after first)", visited)
	}
}

func TestLastQueryStatsReflectsMostRecentQuery(t *testing.T) {
	h := newTestHash()
	h.Insert(1, box(vecmath.Vector3{X: 0, Y: 0, Z: 0}, 0.5), 0)
	h.Insert(2, box(vecmath.Vector3{X: 1, Y: 0, Z: 0}, 0.5), 0)
	h.Insert(3, box(vecmath.Vector3{X: 50, Y: 0, Z: 0}, 0.5), 0)

	h.QueryAABB(box(vecmath.Vector3{}, 5), spatialindex.MatchAllLayers())
	st := h.GetLastQueryStats()
	if st.Count != 1 {
		t.Errorf("Count = %d, want 1", st.Count)
	}
	if st.TotalObjectsReturn != 2 {
		t.Errorf("TotalObjectsReturn = %d, want 2", st.TotalObjectsReturn)
	}
	if st.TotalObjectsTested == 0 {
		t.Error("TotalObjectsTested = 0, want > 0")
	}

	h.QueryAABB(box(vecmath.Vector3{X: 50}, 5), spatialindex.MatchAllLayers())
	st2 := h.GetLastQueryStats()
	if st2.Count != 2 {
		t.Errorf("Count after second query = %d, want 2 (cumulative)", st2.Count)
	}
	if st2.TotalObjectsReturn != 1 {
		t.Errorf("TotalObjectsReturn after second query = %d, want 1 (reset to this query, not accumulated)", st2.TotalObjectsReturn)
	}
}
