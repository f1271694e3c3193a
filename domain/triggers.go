package domain

import (
	"go.uber.org/zap"

	"github.com/nova3d/spatial/bounds"
	"github.com/nova3d/spatial/spatialindex"
	"github.com/nova3d/spatial/vecmath"
)

// EventType names the kind of spatial event a RangeTrigger fires.
type EventType int

const (
	EventEnterRange EventType = iota
	EventExitRange
)

// Event is delivered to a RangeTrigger's OnEnter/OnExit callback.
type Event struct {
	Type     EventType
	SourceID uint64 // the trigger's owner
	TargetID uint64 // the entity that entered/exited
	Position vecmath.Vector3
	Distance float64
}

// EventCallback receives spatial events from a range trigger.
type EventCallback func(Event)

// RangeTrigger detects entities entering/exiting a sphere around a
// moving or static center (spec §4.7).
type RangeTrigger struct {
	ID         uint64
	OwnerID    uint64
	Center     vecmath.Vector3
	Radius     float64
	LayerMask  uint64
	TeamFilter Team
	OnEnter    EventCallback
	OnExit     EventCallback

	currentlyInRange map[uint64]struct{}
}

// CreateRangeTrigger registers a new range trigger and returns its id.
// layerMaskBits defaults to the units layer if zero.
func (s *System) CreateRangeTrigger(ownerID uint64, center vecmath.Vector3, radius float64, onEnter, onExit EventCallback, layerMaskBits uint64, teamFilter Team) uint64 {
	if layerMaskBits == 0 {
		layerMaskBits = layerMask(LayerUnits)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextTriggerID
	s.nextTriggerID++

	s.rangeTriggers[id] = &RangeTrigger{
		ID:               id,
		OwnerID:          ownerID,
		Center:           center,
		Radius:           radius,
		LayerMask:        layerMaskBits,
		TeamFilter:       teamFilter,
		OnEnter:          onEnter,
		OnExit:           onExit,
		currentlyInRange: make(map[uint64]struct{}),
	}
	return id
}

// UpdateRangeTrigger moves a trigger's center.
func (s *System) UpdateRangeTrigger(triggerID uint64, center vecmath.Vector3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rangeTriggers[triggerID]; ok {
		t.Center = center
	}
}

// UpdateRangeTriggerRadius resizes a trigger's detection sphere.
func (s *System) UpdateRangeTriggerRadius(triggerID uint64, radius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rangeTriggers[triggerID]; ok {
		t.Radius = radius
	}
}

// RemoveRangeTrigger deletes a trigger. Entities currently inside fire
// no OnExit — the trigger simply stops existing.
func (s *System) RemoveRangeTrigger(triggerID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rangeTriggers, triggerID)
}

// GetEntitiesInTrigger returns the ids currently inside triggerID, as of
// the last Update.
func (s *System) GetEntitiesInTrigger(triggerID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rangeTriggers[triggerID]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(t.currentlyInRange))
	for id := range t.currentlyInRange {
		ids = append(ids, id)
	}
	return ids
}

// processRangeTriggers runs the enter/exit diff for every trigger: query
// the sphere, filter by team, drop the owner, diff against the previous
// set, fire callbacks, then store the new set (spec §4.7).
func (s *System) processRangeTriggers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.rangeTriggers {
		hits := s.mgr.QuerySphere(bounds.Sphere{Center: t.Center, Radius: t.Radius},
			spatialindex.Filter{LayerMask: t.LayerMask})

		current := make(map[uint64]struct{}, len(hits))
		for _, id := range hits {
			if t.TeamFilter != TeamNone && !s.passesTeamFilter(id, t.TeamFilter) {
				continue
			}
			if id == t.OwnerID {
				continue
			}
			current[id] = struct{}{}
		}

		if t.OnEnter != nil {
			for id := range current {
				if _, was := t.currentlyInRange[id]; !was {
					s.fireTriggerEvent(t, EventEnterRange, id, t.OnEnter)
				}
			}
		}
		if t.OnExit != nil {
			for id := range t.currentlyInRange {
				if _, still := current[id]; !still {
					s.fireTriggerEvent(t, EventExitRange, id, t.OnExit)
				}
			}
		}

		t.currentlyInRange = current
	}
}

func (s *System) fireTriggerEvent(t *RangeTrigger, kind EventType, targetID uint64, cb EventCallback) {
	pos := s.mgr.GetObjectBounds(targetID).Center()
	event := Event{
		Type:     kind,
		SourceID: t.OwnerID,
		TargetID: targetID,
		Position: pos,
		Distance: pos.Distance(t.Center),
	}
	s.log.Debug("range trigger event",
		zap.Uint64("triggerId", t.ID),
		zap.Int("type", int(kind)),
		zap.Uint64("targetId", targetID),
		zap.Float64("distance", event.Distance))
	cb(event)
}
