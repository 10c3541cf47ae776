package scene

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"brainlink.ai/internal/action"
	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
)

var (
	_ action.Agent     = (*Body)(nil)
	_ action.Navigator = (*Body)(nil)
)

func testSpec() Spec {
	return Spec{
		SightRange:  10,
		ThreatRange: 2,
		MoveSpeed:   1,
		Time:        "dusk",
		Actors: []ActorSpec{
			{ID: "a", Nav: true},
			{ID: "b", X: 3},
			{ID: "far", Z: 50},
		},
		POIs: []PoiSpec{{ID: "well", Z: 4}, {ID: "gate", Z: 2}},
		NPCs: []NpcSpec{
			{ID: "gob", Kind: protocol.KindEnemy, Z: 1.5},
			{ID: "crate"},
			{ID: "dragon", Kind: protocol.KindEnemy, Z: 30},
		},
	}
}

func TestObserve(t *testing.T) {
	s := New(testSpec())
	obs, world := s.Observe("a")

	want := []protocol.Observation{
		protocol.NewObservation(protocol.KindEnemy, "gob", 1.5),
		protocol.NewObservation(protocol.KindObject, "crate", 0),
		protocol.NewObservation(protocol.KindAlly, "b", 3),
	}
	if diff := cmp.Diff(want, obs); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&protocol.WorldContext{PoiID: "gate", Time: "dusk", Threat: "high"}, world); diff != "" {
		t.Fatalf("world (-want +got):\n%s", diff)
	}

	if obs, world := s.Observe("nobody"); obs != nil || world != nil {
		t.Fatalf("unknown actor should observe nothing")
	}
	if _, world := s.Observe("far"); world.Threat != "none" || world.PoiID != "" {
		t.Fatalf("far actor world: %+v", world)
	}
}

func TestBody_NavWalksOnAdvance(t *testing.T) {
	s := New(testSpec())
	a, _ := s.Body("a")
	if err := a.SetDestination(mathx.Vec3{Z: 3}); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	s.Advance(time.Second)
	if got := a.Position(); got != (mathx.Vec3{Z: 1}) {
		t.Fatalf("after 1s: %v", got)
	}
	s.Advance(5 * time.Second)
	if got := a.Position(); got != (mathx.Vec3{Z: 3}) {
		t.Fatalf("after arrival: %v", got)
	}
	if _, walking := a.Destination(); walking {
		t.Fatalf("destination should clear on arrival")
	}

	b, _ := s.Body("b")
	if err := b.SetDestination(mathx.Vec3{}); !errors.Is(err, ErrOffNav) {
		t.Fatalf("expected ErrOffNav, got %v", err)
	}
}

func TestPOIRegistry(t *testing.T) {
	s := New(testSpec())
	s.AddPOI(POI{ID: "altar", Pos: mathx.Vec3{X: 1}})
	s.AddPOI(POI{})
	if diff := cmp.Diff([]string{"altar", "gate", "well"}, s.POIIDs()); diff != "" {
		t.Fatalf("POIIDs (-want +got):\n%s", diff)
	}
	if p, ok := s.POI("well"); !ok || p.Pos.Z != 4 {
		t.Fatalf("POI(well)=%+v %v", p, ok)
	}
	if diff := cmp.Diff([]string{"a", "b", "far"}, s.Actors()); diff != "" {
		t.Fatalf("Actors (-want +got):\n%s", diff)
	}
}
