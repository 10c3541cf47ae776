package scene

import "brainlink.ai/internal/protocol"

// Spec seeds a scene from configuration.
type Spec struct {
	SightRange  float64     `yaml:"sight_range"`
	ThreatRange float64     `yaml:"threat_range"`
	MoveSpeed   float64     `yaml:"move_speed"`
	Time        string      `yaml:"time"`
	Actors      []ActorSpec `yaml:"actors"`
	POIs        []PoiSpec   `yaml:"pois"`
	NPCs        []NpcSpec   `yaml:"npcs"`
}

type ActorSpec struct {
	ID  string  `yaml:"id"`
	X   float64 `yaml:"x"`
	Y   float64 `yaml:"y"`
	Z   float64 `yaml:"z"`
	Nav bool    `yaml:"nav"`
}

type PoiSpec struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Z    float64 `yaml:"z"`
}

type NpcSpec struct {
	ID   string                   `yaml:"id"`
	Name string                   `yaml:"name"`
	Kind protocol.ObservationKind `yaml:"kind"`
	X    float64                  `yaml:"x"`
	Y    float64                  `yaml:"y"`
	Z    float64                  `yaml:"z"`
}

func DefaultSpec() Spec {
	return Spec{
		SightRange:  10,
		ThreatRange: 3,
		MoveSpeed:   2,
		Time:        "day",
		Actors: []ActorSpec{
			{ID: "adv-1", X: 0, Z: 0, Nav: true},
			{ID: "adv-2", X: 2, Z: 0, Nav: true},
			{ID: "adv-3", X: -2, Z: 0},
		},
		POIs: []PoiSpec{
			{ID: "camp", Name: "Camp", X: 0, Z: -2},
			{ID: "crypt-door", Name: "Crypt Door", X: 0, Z: 12},
		},
		NPCs: []NpcSpec{
			{ID: "gob-1", Name: "Goblin", Kind: protocol.KindEnemy, X: 1, Z: 8},
			{ID: "chest-1", Name: "Chest", Kind: protocol.KindObject, X: -3, Z: 5},
			{ID: "pit-1", Name: "Pit", Kind: protocol.KindTrap, X: 2, Z: 5},
		},
	}
}
