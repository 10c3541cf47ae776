// Package scene is a headless stand-in for the game world: actor bodies,
// other entities and named points of interest.
package scene

import (
	"math"
	"sort"
	"sync"
	"time"

	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
)

type Entity struct {
	ID   string
	Name string
	Kind protocol.ObservationKind
	Pos  mathx.Vec3
}

type POI struct {
	ID   string
	Name string
	Pos  mathx.Vec3
}

type Scene struct {
	mu sync.RWMutex

	bodies   map[string]*Body
	order    []string
	entities []Entity
	pois     map[string]POI
	poiOrder []string

	sightRange  float64
	threatRange float64
	speed       float64
	timeOfDay   string
}

func New(spec Spec) *Scene {
	s := &Scene{
		bodies:      map[string]*Body{},
		pois:        map[string]POI{},
		sightRange:  spec.SightRange,
		threatRange: spec.ThreatRange,
		speed:       spec.MoveSpeed,
		timeOfDay:   spec.Time,
	}
	if s.sightRange <= 0 {
		s.sightRange = math.Inf(1)
	}
	for _, a := range spec.Actors {
		s.AddBody(a.ID, mathx.Vec3{X: a.X, Y: a.Y, Z: a.Z}, a.Nav)
	}
	for _, p := range spec.POIs {
		s.AddPOI(POI{ID: p.ID, Name: p.Name, Pos: mathx.Vec3{X: p.X, Y: p.Y, Z: p.Z}})
	}
	for _, n := range spec.NPCs {
		kind := n.Kind
		if kind == "" {
			kind = protocol.KindObject
		}
		s.AddEntity(Entity{ID: n.ID, Name: n.Name, Kind: kind, Pos: mathx.Vec3{X: n.X, Y: n.Y, Z: n.Z}})
	}
	return s
}

// AddBody registers an actor body. Re-adding an id moves the existing body.
func (s *Scene) AddBody(id string, pos mathx.Vec3, nav bool) *Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.bodies[id]; b != nil {
		b.SetPosition(pos)
		b.SetNav(nav)
		return b
	}
	b := &Body{id: id, pos: pos, onNav: nav, speed: s.speed}
	s.bodies[id] = b
	s.order = append(s.order, id)
	return b
}

func (s *Scene) Body(id string) (*Body, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bodies[id]
	return b, ok
}

// Actors lists body ids in registration order.
func (s *Scene) Actors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Scene) AddEntity(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, e)
}

// AddPOI registers or replaces a point of interest by id.
func (s *Scene) AddPOI(p POI) {
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pois[p.ID]; !ok {
		s.poiOrder = append(s.poiOrder, p.ID)
	}
	s.pois[p.ID] = p
}

func (s *Scene) POI(id string) (POI, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pois[id]
	return p, ok
}

// POIIDs returns every point of interest id, sorted.
func (s *Scene) POIIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string(nil), s.poiOrder...)
	sort.Strings(out)
	return out
}

// SetTime changes the time of day reported in every actor's world context.
func (s *Scene) SetTime(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeOfDay = t
}

func (s *Scene) Time() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeOfDay
}

// Advance walks every navigating body towards its destination.
func (s *Scene) Advance(dt time.Duration) {
	s.mu.RLock()
	bodies := make([]*Body, 0, len(s.order))
	for _, id := range s.order {
		bodies = append(bodies, s.bodies[id])
	}
	s.mu.RUnlock()
	for _, b := range bodies {
		b.advance(dt)
	}
}

// Observe lists what actorID can see, entities first in insertion order and
// then other actors, plus the nearest point of interest and a threat level.
// An unknown actor sees nothing.
func (s *Scene) Observe(actorID string) ([]protocol.Observation, *protocol.WorldContext) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	self := s.bodies[actorID]
	if self == nil {
		return nil, nil
	}
	at := self.Position()

	var obs []protocol.Observation
	threat := "none"
	for _, e := range s.entities {
		d := mathx.Dist(at, e.Pos)
		if d > s.sightRange {
			continue
		}
		obs = append(obs, protocol.NewObservation(e.Kind, e.ID, round2(d)))
		if e.Kind == protocol.KindEnemy || e.Kind == protocol.KindTrap {
			if d <= s.threatRange {
				threat = "high"
			} else if threat == "none" {
				threat = "low"
			}
		}
	}
	for _, id := range s.order {
		if id == actorID {
			continue
		}
		d := mathx.Dist(at, s.bodies[id].Position())
		if d > s.sightRange {
			continue
		}
		obs = append(obs, protocol.NewObservation(protocol.KindAlly, id, round2(d)))
	}

	world := &protocol.WorldContext{Time: s.timeOfDay, Threat: threat}
	best := math.Inf(1)
	for _, id := range s.poiOrder {
		d := mathx.Dist(at, s.pois[id].Pos)
		if d <= s.sightRange && d < best {
			best = d
			world.PoiID = id
		}
	}
	return obs, world
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
