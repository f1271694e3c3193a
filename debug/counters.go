package debug

import "github.com/nova3d/spatial/spatialindex"

// VisitCounter wraps a VisitorFunc to count how many objects a visit
// query actually reached, mirroring BVHVisualizationStats' primitivesTested
// field. Backends already populate Stats.TotalObjectsTested per call
// (GetLastQueryStats), but a VisitCounter lets a caller tally across
// several Visit* calls, or count only the objects the visitor itself saw
// rather than everything tested against the query shape.
type VisitCounter struct {
	Visited int
}

// Wrap returns a VisitorFunc that increments Visited and forwards to inner.
func (c *VisitCounter) Wrap(inner spatialindex.VisitorFunc) spatialindex.VisitorFunc {
	return func(id uint64) bool {
		c.Visited++
		if inner == nil {
			return true
		}
		return inner(id)
	}
}
