package debug

import (
	"testing"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/spatialindex/bvh"
	"github.com/nova3d/spatial/vecmath"
)

func box(center vecmath.Vector3, half float64) bounds.AABB {
	h := vecmath.Vector3{X: half, Y: half, Z: half}
	return bounds.AABB{Min: center.Sub(h), Max: center.Add(h)}
}

func TestValidateSoundBVH(t *testing.T) {
	b := bvh.New(bvh.Config{MaxPrimitivesPerLeaf: 2})
	for i := uint64(0); i < 8; i++ {
		b.Insert(i, box(vecmath.Vector3{X: float64(i), Y: 0, Z: 0}, 0.5), 0)
	}

	report := Validate(b)
	if !report.Sound() {
		t.Errorf("report.Sound() = false, issues: %v", report.Issues)
	}
	if report.TypeName != "BVH" {
		t.Errorf("TypeName = %q, want BVH", report.TypeName)
	}
	if report.SAHCost <= 0 {
		t.Errorf("SAHCost = %v, want > 0", report.SAHCost)
	}
}

func TestVisitCounterCountsVisits(t *testing.T) {
	b := bvh.New(bvh.Config{MaxPrimitivesPerLeaf: 2})
	b.Insert(1, box(vecmath.Vector3{}, 0.5), 0)
	b.Insert(2, box(vecmath.Vector3{X: 1}, 0.5), 0)

	var counter VisitCounter
	b.VisitAABB(box(vecmath.Vector3{X: 0.5}, 5), spatialindex.MatchAllLayers(), counter.Wrap(nil))

	if counter.Visited != 2 {
		t.Errorf("Visited = %d, want 2", counter.Visited)
	}
}

func TestReportStringIncludesIssueCount(t *testing.T) {
	r := Report{TypeName: "Test", Issues: []string{"bad thing"}}
	s := r.String()
	if s == "" {
		t.Fatal("String() = empty")
	}
	if r.Sound() {
		t.Error("Sound() = true, want false")
	}
}
