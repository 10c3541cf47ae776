// Package party tracks the persistent state of every actor in the session.
package party

import (
	"sync"

	"brainlink.ai/internal/mathx"
)

const DefaultHP = 10

type ActorState struct {
	ID        string     `json:"id"`
	Position  mathx.Vec3 `json:"position"`
	HP        int        `json:"hp"`
	Inventory []string   `json:"inventory"`
}

func newActor(id string) *ActorState {
	return &ActorState{ID: id, HP: DefaultHP, Inventory: []string{}}
}

func (a ActorState) clone() ActorState {
	a.Inventory = append([]string{}, a.Inventory...)
	return a
}

// Party is safe for concurrent use. Enumerate returns actors in the order
// they were first seen.
type Party struct {
	mu     sync.RWMutex
	actors map[string]*ActorState
	order  []string
}

func New() *Party {
	return &Party{actors: map[string]*ActorState{}}
}

func (p *Party) ensureLocked(id string) *ActorState {
	a := p.actors[id]
	if a == nil {
		a = newActor(id)
		p.actors[id] = a
		p.order = append(p.order, id)
	}
	return a
}

// Ensure returns the actor, creating it with default state if needed.
func (p *Party) Ensure(id string) ActorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLocked(id).clone()
}

func (p *Party) Get(id string) (ActorState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a := p.actors[id]
	if a == nil {
		return ActorState{}, false
	}
	return a.clone(), true
}

func (p *Party) SyncPosition(id string, pos mathx.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLocked(id).Position = pos
}

func (p *Party) SetHP(id string, hp int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLocked(id).HP = hp
}

func (p *Party) AddItem(id, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.ensureLocked(id)
	a.Inventory = append(a.Inventory, item)
}

// Restore overwrites position, hp and inventory of st.ID.
func (p *Party) Restore(st ActorState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.ensureLocked(st.ID)
	a.Position = st.Position
	a.HP = st.HP
	a.Inventory = append([]string{}, st.Inventory...)
}

func (p *Party) Enumerate() []ActorState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ActorState, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.actors[id].clone())
	}
	return out
}
