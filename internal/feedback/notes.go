package feedback

import (
	"sort"
	"sync"
)

// NoteChange is delivered to subscribers after a note is set or cleared.
type NoteChange struct {
	ActorID string
	Note    string
}

// Notes holds the last DM note per actor.
type Notes struct {
	mu    sync.RWMutex
	notes map[string]string
	subs  map[int]func(NoteChange)
	next  int
}

func NewNotes() *Notes {
	return &Notes{notes: map[string]string{}, subs: map[int]func(NoteChange){}}
}

// Set replaces the note for actorID. An empty note clears it; an empty
// actorID is ignored.
func (n *Notes) Set(actorID, note string) {
	if actorID == "" {
		return
	}
	n.mu.Lock()
	if note == "" {
		delete(n.notes, actorID)
	} else {
		n.notes[actorID] = note
	}
	subs := make([]func(NoteChange), 0, len(n.subs))
	for _, id := range sortedKeys(n.subs) {
		subs = append(subs, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(NoteChange{ActorID: actorID, Note: note})
	}
}

func (n *Notes) Get(actorID string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.notes[actorID]
	return s, ok
}

// All returns a copy of every note.
func (n *Notes) All() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.notes))
	for k, v := range n.notes {
		out[k] = v
	}
	return out
}

// Replace swaps the whole table without notifying subscribers.
func (n *Notes) Replace(all map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			n.notes[k] = v
		}
	}
}

// Subscribe registers fn for future changes and returns a cancel func.
func (n *Notes) Subscribe(fn func(NoteChange)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func sortedKeys(m map[int]func(NoteChange)) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
