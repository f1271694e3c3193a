package domain

import (
	"math"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

// losEpsilon is the slack subtracted from the target distance before a
// hit is considered occluding (spec §4.7: "before distance − epsilon").
const losEpsilon = 0.1

// TerrainHit is the result of RaycastTerrain.
type TerrainHit struct {
	Hit      bool
	Point    vecmath.Vector3
	Normal   vecmath.Vector3
	Distance float64
	TileID   uint64
}

// RaycastTerrain casts ray against the terrain layer only, returning the
// first hit's point, distance and tile id (spec §4.7). The subsystem has
// no per-triangle terrain normal data, so Normal defaults to up — games
// with a heightmap normal source should overwrite it downstream.
func (s *System) RaycastTerrain(ray bounds.Ray, maxDistance float64) TerrainHit {
	hits := s.mgr.QueryRay(ray, maxDistance, spatialindex.Filter{LayerMask: layerMask(LayerTerrain)})
	if len(hits) == 0 {
		return TerrainHit{}
	}
	h := hits[0]
	return TerrainHit{
		Hit:      true,
		Point:    ray.At(h.Distance),
		Normal:   vecmath.Vector3{X: 0, Y: 1, Z: 0},
		Distance: h.Distance,
		TileID:   h.ID,
	}
}

// RaycastEntities casts ray against every object matching layerMask,
// nearest first.
func (s *System) RaycastEntities(ray bounds.Ray, maxDistance float64, layerMaskBits uint64) []spatialindex.RayHit {
	return s.mgr.QueryRay(ray, maxDistance, spatialindex.Filter{LayerMask: layerMaskBits})
}

// RaycastFirst returns the first hit along ray that isn't excludeID, or
// ok=false if every hit (if any) is excludeID or there are none.
func (s *System) RaycastFirst(ray bounds.Ray, maxDistance float64, layerMaskBits, excludeID uint64) (spatialindex.RayHit, bool) {
	hits := s.RaycastEntities(ray, maxDistance, layerMaskBits)
	for _, h := range hits {
		if h.ID != excludeID {
			return h, true
		}
	}
	return spatialindex.RayHit{}, false
}

// HasLineOfSight reports whether nothing on the terrain or buildings
// layers occludes the segment from..to, ignoring excludeIDA/excludeIDB
// (spec §4.7 — a unit's own body must not occlude its own LOS check).
func (s *System) HasLineOfSight(from, to vecmath.Vector3, excludeIDA, excludeIDB uint64) bool {
	toTarget := to.Sub(from)
	distance := toTarget.Length()
	if distance < 1e-3 {
		return true
	}
	ray := bounds.NewRay(from, toTarget)

	if terrainHit := s.RaycastTerrain(ray, distance); terrainHit.Hit && terrainHit.Distance < distance-losEpsilon {
		return false
	}

	buildingHits := s.mgr.QueryRay(ray, distance, spatialindex.Filter{LayerMask: layerMask(LayerBuildings)})
	for _, h := range buildingHits {
		if h.ID == excludeIDA || h.ID == excludeIDB {
			continue
		}
		if h.Distance < distance-losEpsilon {
			return false
		}
	}
	return true
}

// GetPathfindingObstacles returns the bounds of every building
// intersecting area, for feeding a pathfinder's node-blocking step.
func (s *System) GetPathfindingObstacles(area bounds.AABB) []bounds.AABB {
	ids := s.GetBuildingsInArea(area)
	obstacles := make([]bounds.AABB, 0, len(ids))
	for _, id := range ids {
		obstacles = append(obstacles, s.mgr.GetObjectBounds(id))
	}
	return obstacles
}

// IsPositionWalkable reports whether a capsule-ish test box of the given
// radius at position clears every registered building.
func (s *System) IsPositionWalkable(position vecmath.Vector3, radius float64) bool {
	test := bounds.AABB{
		Min: vecmath.Vector3{X: position.X - radius, Y: position.Y - 0.5, Z: position.Z - radius},
		Max: vecmath.Vector3{X: position.X + radius, Y: position.Y + 0.5, Z: position.Z + radius},
	}
	buildings := s.mgr.QueryAABB(test, spatialindex.Filter{LayerMask: layerMask(LayerBuildings)})
	return len(buildings) == 0
}

// GetNavigablePositions samples a grid of spacing-separated points
// within radius of center and returns those that are walkable — feeds a
// pathfinder's node-generation step (spec §12 supplement).
func (s *System) GetNavigablePositions(center vecmath.Vector3, radius, spacing float64) []vecmath.Vector3 {
	if spacing <= 0 {
		return nil
	}
	steps := int(math.Ceil(radius / spacing))

	var positions []vecmath.Vector3
	for x := -steps; x <= steps; x++ {
		for z := -steps; z <= steps; z++ {
			pos := vecmath.Vector3{
				X: center.X + float64(x)*spacing,
				Y: center.Y,
				Z: center.Z + float64(z)*spacing,
			}
			if pos.Distance(center) <= radius && s.IsPositionWalkable(pos, 0.5) {
				positions = append(positions, pos)
			}
		}
	}
	return positions
}
