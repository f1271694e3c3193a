package domain

import (
	"math"
	"sort"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

// UnitMatch pairs a unit id with its distance from a query origin,
// returned by the sorted range queries.
type UnitMatch struct {
	ID       uint64
	Distance float64
}

// GetUnitsInRange returns unit ids within radius of position, filtered
// by team (TeamNone admits all), liveness and targetability (spec §4.7).
func (s *System) GetUnitsInRange(position vecmath.Vector3, radius float64, teamFilter Team, aliveOnly, targetableOnly bool) []uint64 {
	candidates := s.mgr.QuerySphere(bounds.Sphere{Center: position, Radius: radius},
		spatialindex.Filter{LayerMask: layerMask(LayerUnits)})

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		rec, ok := s.units[id]
		if !ok {
			continue
		}
		if aliveOnly && !rec.alive {
			continue
		}
		if targetableOnly && !rec.targetable {
			continue
		}
		if teamFilter != TeamNone && rec.team != teamFilter {
			continue
		}
		results = append(results, id)
	}
	return results
}

// GetUnitsInRangeSorted is GetUnitsInRange sorted by distance from
// position to each unit's current AABB (spec §4.7).
func (s *System) GetUnitsInRangeSorted(position vecmath.Vector3, radius float64, teamFilter Team, aliveOnly bool) []UnitMatch {
	ids := s.GetUnitsInRange(position, radius, teamFilter, aliveOnly, false)

	matches := make([]UnitMatch, 0, len(ids))
	for _, id := range ids {
		a := s.mgr.GetObjectBounds(id)
		matches = append(matches, UnitMatch{ID: id, Distance: distanceToAABB(a, position)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches
}

// GetNearestUnit returns the closest matching unit within maxRange,
// excluding excludeID, or (0, false) if none match.
func (s *System) GetNearestUnit(position vecmath.Vector3, maxRange float64, teamFilter Team, aliveOnly bool, excludeID uint64) (uint64, bool) {
	for _, m := range s.GetUnitsInRangeSorted(position, maxRange, teamFilter, aliveOnly) {
		if m.ID != excludeID {
			return m.ID, true
		}
	}
	return spatialindex.SentinelID, false
}

// GetKNearestUnits returns up to k matching units within maxRange,
// nearest first.
func (s *System) GetKNearestUnits(position vecmath.Vector3, k int, maxRange float64, teamFilter Team, aliveOnly bool) []uint64 {
	matches := s.GetUnitsInRangeSorted(position, maxRange, teamFilter, aliveOnly)
	if k > len(matches) {
		k = len(matches)
	}
	results := make([]uint64, k)
	for i := 0; i < k; i++ {
		results[i] = matches[i].ID
	}
	return results
}

// GetFriendlyUnitsInRange returns units on myTeam within radius.
func (s *System) GetFriendlyUnitsInRange(position vecmath.Vector3, radius float64, myTeam Team, aliveOnly bool) []uint64 {
	return s.GetUnitsInRange(position, radius, myTeam, aliveOnly, false)
}

// GetEnemyUnitsInRange returns units within radius whose team is
// neither myTeam nor TeamNeutral (spec §4.7).
func (s *System) GetEnemyUnitsInRange(position vecmath.Vector3, radius float64, myTeam Team, aliveOnly bool) []uint64 {
	candidates := s.mgr.QuerySphere(bounds.Sphere{Center: position, Radius: radius},
		spatialindex.Filter{LayerMask: layerMask(LayerUnits)})

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		rec, ok := s.units[id]
		if !ok {
			continue
		}
		if aliveOnly && !rec.alive {
			continue
		}
		if rec.team == myTeam || rec.team == TeamNeutral {
			continue
		}
		results = append(results, id)
	}
	return results
}

// GetBuildingsInArea returns all building ids intersecting area.
func (s *System) GetBuildingsInArea(area bounds.AABB) []uint64 {
	return s.mgr.QueryAABB(area, spatialindex.Filter{LayerMask: layerMask(LayerBuildings)})
}

// GetBuildingsInAreaForTeam returns buildings in area owned by team.
func (s *System) GetBuildingsInAreaForTeam(area bounds.AABB, team Team) []uint64 {
	candidates := s.GetBuildingsInArea(area)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		if owner, ok := s.buildingTeams[id]; ok && owner == team {
			results = append(results, id)
		}
	}
	return results
}

// ConeQuery describes a cone-shaped detection volume (vision, abilities).
type ConeQuery struct {
	Origin    vecmath.Vector3
	Direction vecmath.Vector3 // need not be normalized
	HalfAngle float64         // radians
	Range     float64
}

// isInCone reports whether point falls inside cone: within Range of
// Origin and within HalfAngle of Direction (spec §4.7).
func isInCone(point vecmath.Vector3, cone ConeQuery) bool {
	toPoint := point.Sub(cone.Origin)
	dist := toPoint.Length()
	if dist > cone.Range || dist < 1e-3 {
		return false
	}
	cosAngle := toPoint.Scale(1 / dist).Dot(cone.Direction.Normalized())
	return cosAngle >= math.Cos(cone.HalfAngle)
}

// GetEntitiesInCone broad-phases with a sphere query of radius
// cone.Range about cone.Origin, then keeps candidates whose center
// falls within the cone (spec §4.7).
func (s *System) GetEntitiesInCone(cone ConeQuery, layerMask uint64) []uint64 {
	candidates := s.mgr.QuerySphere(bounds.Sphere{Center: cone.Origin, Radius: cone.Range},
		spatialindex.Filter{LayerMask: layerMask})

	results := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		a := s.mgr.GetObjectBounds(id)
		if isInCone(a.Center(), cone) {
			results = append(results, id)
		}
	}
	return results
}

// GetUnitsInCone is GetEntitiesInCone restricted to the units layer and
// further filtered by team/liveness.
func (s *System) GetUnitsInCone(origin, direction vecmath.Vector3, halfAngle, rng float64, teamFilter Team, aliveOnly bool) []uint64 {
	cone := ConeQuery{Origin: origin, Direction: direction, HalfAngle: halfAngle, Range: rng}
	candidates := s.GetEntitiesInCone(cone, layerMask(LayerUnits))

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		rec, ok := s.units[id]
		if !ok {
			continue
		}
		if aliveOnly && !rec.alive {
			continue
		}
		if teamFilter != TeamNone && rec.team != teamFilter {
			continue
		}
		results = append(results, id)
	}
	return results
}

// GetVisibleEntities returns ids of objects on any of layerMask's layers
// that intersect frustum (spec §6: renderer collaborator).
func (s *System) GetVisibleEntities(frustum *bounds.Frustum, layerMask uint64) []uint64 {
	return s.mgr.QueryFrustum(frustum, spatialindex.Filter{LayerMask: layerMask})
}

// GetVisibleUnits is GetVisibleEntities restricted to the units layer.
func (s *System) GetVisibleUnits(frustum *bounds.Frustum) []uint64 {
	return s.GetVisibleEntities(frustum, layerMask(LayerUnits))
}

// GetVisibleBuildings is GetVisibleEntities restricted to the buildings layer.
func (s *System) GetVisibleBuildings(frustum *bounds.Frustum) []uint64 {
	return s.GetVisibleEntities(frustum, layerMask(LayerBuildings))
}
