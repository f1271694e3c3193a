// Package domain is the game-facing wrapper over the manager facade: it
// adds team/liveness filtering, cone queries, range triggers and
// terrain-aware raycasts on top of the plain spatial-index API (spec
// §4.7). It owns no index itself — every query ultimately reaches the
// manager's primary or per-layer index.
package domain

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/manager"
	"github.com/nova3d/spatial/vecmath"
)

// Team filters team-scoped queries. TeamNone matches every team.
type Team uint8

const (
	TeamNone Team = iota
	TeamPlayer
	TeamEnemy
	TeamNeutral
	TeamAlliedNPC
)

// Layer assigns object records to one of the manager's 64 layer bits.
// The domain wrapper only needs a handful of named layers; games are
// free to use the remaining bits for their own purposes.
type Layer int

const (
	LayerUnits Layer = iota
	LayerBuildings
	LayerProjectiles
	LayerTerrain
	LayerTriggers
	LayerPickups
	LayerEffects
	LayerNavigation
)

func layerMask(l Layer) uint64 {
	return uint64(1) << uint(l)
}

// unitRecord is the side-table entry for a registered unit (spec §4.7:
// "side table id → (team, radius, alive, targetable)").
type unitRecord struct {
	team       Team
	radius     float64
	alive      bool
	targetable bool
}

// Config configures a System's embedded manager.
type Config struct {
	Manager manager.Config
	Logger  *zap.Logger
}

// System is the domain-layer spatial wrapper: team-filtered unit
// queries, cone queries, range triggers, terrain raycasting and
// pathfinding helpers, all layered over one manager.Manager.
type System struct {
	mgr *manager.Manager
	log *zap.Logger

	mu             sync.RWMutex
	units          map[uint64]unitRecord
	buildingTeams  map[uint64]Team
	rangeTriggers  map[uint64]*RangeTrigger
	nextTriggerID  uint64
	unitCount      int
	buildingCount  int
	projectileCount int
}

// New builds a System with a freshly constructed manager.Manager.
func New(cfg Config) *System {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Manager.Logger = log
	return &System{
		mgr:           manager.New(cfg.Manager),
		log:           log,
		units:         make(map[uint64]unitRecord),
		buildingTeams: make(map[uint64]Team),
		rangeTriggers: make(map[uint64]*RangeTrigger),
		nextTriggerID: 1,
	}
}

// Manager exposes the underlying facade for callers (renderer, debug
// tooling) that need the raw index-layer API.
func (s *System) Manager() *manager.Manager {
	return s.mgr
}

// Update advances range triggers by one frame (spec §4.7's enter/exit
// state machine). The index layer itself has no per-frame state beyond
// the manager's query cache epoch.
func (s *System) Update(dt float64) {
	s.processRangeTriggers()
}

// RegisterUnit registers a unit at position with the given collision
// radius and team, inserting a cube AABB of half-extent radius into the
// units layer.
func (s *System) RegisterUnit(id uint64, position vecmath.Vector3, radius float64, team Team) {
	a := aabbFromCenterRadius(position, radius)
	s.mgr.Insert(id, a, int(LayerUnits))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[id] = unitRecord{team: team, radius: radius, alive: true, targetable: true}
	s.unitCount++
}

// RegisterBuilding registers a building's static world-space bounds and
// owning team.
func (s *System) RegisterBuilding(id uint64, a bounds.AABB, team Team) {
	s.mgr.Insert(id, a, int(LayerBuildings))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildingTeams[id] = team
	s.buildingCount++
}

// RegisterProjectile registers a projectile at position with the given
// collision radius. Projectiles carry no team in the side table — only
// units and buildings are team-filterable (spec §4.7).
func (s *System) RegisterProjectile(id uint64, position vecmath.Vector3, radius float64) {
	a := aabbFromCenterRadius(position, radius)
	s.mgr.Insert(id, a, int(LayerProjectiles))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectileCount++
}

// RegisterTerrainChunk registers a static terrain chunk's bounds on the
// terrain layer, the only layer RaycastTerrain consults.
func (s *System) RegisterTerrainChunk(chunkID uint64, a bounds.AABB) {
	s.mgr.Insert(chunkID, a, int(LayerTerrain))
}

// UnregisterEntity removes id from whichever side table it lives in (at
// most one) and from the manager. The layer is inferred from which side
// table holds id; an id in neither table is treated as a projectile
// (projectiles keep no side-table row): the projectile count is
// decremented and id is removed from the projectiles layer.
func (s *System) UnregisterEntity(id uint64) {
	s.mu.Lock()
	if _, ok := s.units[id]; ok {
		delete(s.units, id)
		s.unitCount--
		s.mu.Unlock()
		s.mgr.Remove(id, int(LayerUnits))
		return
	}
	if _, ok := s.buildingTeams[id]; ok {
		delete(s.buildingTeams, id)
		s.buildingCount--
		s.mu.Unlock()
		s.mgr.Remove(id, int(LayerBuildings))
		return
	}
	s.projectileCount--
	s.mu.Unlock()
	s.mgr.Remove(id, int(LayerProjectiles))
}

// UpdateEntityPosition moves a registered unit or projectile, preserving
// its collision radius (units) or recentering its existing bounds
// (anything else).
func (s *System) UpdateEntityPosition(id uint64, position vecmath.Vector3) {
	s.mu.RLock()
	rec, isUnit := s.units[id]
	s.mu.RUnlock()

	if isUnit {
		s.mgr.Update(id, aabbFromCenterRadius(position, rec.radius), int(LayerUnits))
		return
	}

	current := s.mgr.GetObjectBounds(id)
	if !s.mgr.Contains(id) {
		return
	}
	offset := position.Sub(current.Center())
	moved := bounds.AABB{Min: current.Min.Add(offset), Max: current.Max.Add(offset)}
	s.mgr.Update(id, moved, int(LayerProjectiles))
}

// UpdateEntityBounds directly replaces id's bounds (buildings/terrain).
func (s *System) UpdateEntityBounds(id uint64, a bounds.AABB, layer Layer) {
	s.mgr.Update(id, a, int(layer))
}

// SetUnitAlive marks a registered unit's liveness for aliveOnly filters.
func (s *System) SetUnitAlive(id uint64, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.units[id]; ok {
		rec.alive = alive
		s.units[id] = rec
	}
}

// SetUnitTargetable marks a registered unit's targetability.
func (s *System) SetUnitTargetable(id uint64, targetable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.units[id]; ok {
		rec.targetable = targetable
		s.units[id] = rec
	}
}

func aabbFromCenterRadius(center vecmath.Vector3, radius float64) bounds.AABB {
	ext := vecmath.Vector3{X: radius, Y: radius, Z: radius}
	return bounds.AABB{Min: center.Sub(ext), Max: center.Add(ext)}
}

// passesTeamFilter reports whether id (a unit or building) matches
// filter. TeamNone matches everything, including unregistered ids.
func (s *System) passesTeamFilter(id uint64, filter Team) bool {
	if filter == TeamNone {
		return true
	}
	if rec, ok := s.units[id]; ok {
		return rec.team == filter
	}
	if team, ok := s.buildingTeams[id]; ok {
		return team == filter
	}
	return true
}

// UnitCount, BuildingCount, ProjectileCount report side-table sizes.
func (s *System) UnitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unitCount
}

func (s *System) BuildingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildingCount
}

func (s *System) ProjectileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectileCount
}

// distanceToAABB returns the distance from p to the closest point on a.
func distanceToAABB(a bounds.AABB, p vecmath.Vector3) float64 {
	return math.Sqrt(a.DistanceSquared(p))
}
