// Package debug provides structural validation and quality reporting
// for spatial index backends. Rendering a visualization of the tree is
// out of scope, but checking that it's actually sound is not: this
// package turns those checks into a structured report a host
// application can log or alert on without crashing.
package debug

import (
	"fmt"

	"github.com/nova3d/spatial/spatialindex"
)

// validator is implemented by index backends that can self-check their
// structural invariants (bvh.BVH, octree.Octree, hash.Hash all do).
type validator interface {
	Validate() []string
}

// sahReporter is implemented by index backends that expose a SAH-cost
// quality metric (only bvh.BVH does; spec §8 item 10).
type sahReporter interface {
	SAHCost() float64
}

// Report is the structural/quality summary for one index instance.
type Report struct {
	TypeName   string
	ObjectCount int
	MemoryBytes uintptr
	Stats       spatialindex.Stats

	// Issues lists every structural invariant violation found by
	// Validate (spec §8 items 7-13); empty/nil means the index passed
	// every check applicable to its backend.
	Issues []string

	// SAHCost is only meaningful for BVH; zero for other backends.
	SAHCost float64
}

// Sound reports whether the index passed every applicable structural
// check.
func (r Report) Sound() bool { return len(r.Issues) == 0 }

// String renders a human-readable multi-line summary, suitable for
// logging.
func (r Report) String() string {
	s := fmt.Sprintf("%s: %d objects, %d bytes, %d queries served", r.TypeName, r.ObjectCount, r.MemoryBytes, r.Stats.Count)
	if r.SAHCost > 0 {
		s += fmt.Sprintf(", SAH cost %.3f", r.SAHCost)
	}
	if len(r.Issues) == 0 {
		return s + " — sound"
	}
	s += fmt.Sprintf(" — %d issue(s):", len(r.Issues))
	for _, issue := range r.Issues {
		s += "\n  - " + issue
	}
	return s
}

// Validate builds a structural/quality report for idx. Backends that
// don't implement validator (none currently — every shipped backend
// does) report Sound()==true trivially, since there is nothing to check.
func Validate(idx spatialindex.Index) Report {
	r := Report{
		TypeName:    idx.GetTypeName(),
		ObjectCount: idx.GetObjectCount(),
		MemoryBytes: idx.GetMemoryUsage(),
		Stats:       idx.GetLastQueryStats(),
	}
	if v, ok := idx.(validator); ok {
		r.Issues = v.Validate()
	}
	if s, ok := idx.(sahReporter); ok {
		r.SAHCost = s.SAHCost()
	}
	return r
}
