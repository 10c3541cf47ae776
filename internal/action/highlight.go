package action

import (
	"sync"
	"time"
)

const DefaultFlashDuration = 250 * time.Millisecond

// Highlight is the visible state of one actor's marker.
type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightSuccess
	HighlightFail
)

func (h Highlight) String() string {
	switch h {
	case HighlightSuccess:
		return "success"
	case HighlightFail:
		return "fail"
	default:
		return "none"
	}
}

// Highlighter sets a per-actor highlight and reverts it after Duration.
// A newer flash replaces a pending revert.
type Highlighter struct {
	Duration time.Duration
	// OnChange, if set, is called on every transition outside the lock.
	OnChange func(actorID string, h Highlight)

	mu     sync.Mutex
	state  map[string]Highlight
	timers map[string]*time.Timer
	gen    map[string]uint64
}

func NewHighlighter(d time.Duration) *Highlighter {
	if d <= 0 {
		d = DefaultFlashDuration
	}
	return &Highlighter{
		Duration: d,
		state:    map[string]Highlight{},
		timers:   map[string]*time.Timer{},
		gen:      map[string]uint64{},
	}
}

func (h *Highlighter) Flash(actorID string, success bool) {
	hl := HighlightFail
	if success {
		hl = HighlightSuccess
	}

	h.mu.Lock()
	if t := h.timers[actorID]; t != nil {
		t.Stop()
	}
	h.gen[actorID]++
	g := h.gen[actorID]
	h.state[actorID] = hl
	h.timers[actorID] = time.AfterFunc(h.Duration, func() { h.revert(actorID, g) })
	cb := h.OnChange
	h.mu.Unlock()

	if cb != nil {
		cb(actorID, hl)
	}
}

func (h *Highlighter) revert(actorID string, g uint64) {
	h.mu.Lock()
	if h.gen[actorID] != g {
		h.mu.Unlock()
		return
	}
	delete(h.state, actorID)
	delete(h.timers, actorID)
	cb := h.OnChange
	h.mu.Unlock()

	if cb != nil {
		cb(actorID, HighlightNone)
	}
}

func (h *Highlighter) Current(actorID string) Highlight {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state[actorID]
}

// Stop cancels every pending revert and clears all highlights.
func (h *Highlighter) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
		h.gen[id]++
	}
	for id := range h.state {
		delete(h.state, id)
	}
}
