// Package session owns the client-side state of one game session and routes
// gateway frames through the dice gate.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"brainlink.ai/internal/action"
	"brainlink.ai/internal/feedback"
	"brainlink.ai/internal/gate"
	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/party"
	"brainlink.ai/internal/persistence/savedb"
	"brainlink.ai/internal/protocol"
	"brainlink.ai/internal/scene"
)

var (
	ErrNoStore = errors.New("no save store configured")

	// ErrUnknownCode is returned for a gateway Error frame whose code this
	// client does not recognise. The session carries on.
	ErrUnknownCode = errors.New("unknown error code")
)

// SaveStore persists party state and DM notes.
type SaveStore interface {
	Save(ctx context.Context, snap savedb.Snapshot) error
	Load(ctx context.Context) (savedb.Snapshot, error)
}

type Options struct {
	Scene              *scene.Scene
	DefaultDC          int
	RespectSuggestedDC bool
	AutoResolve        bool
	FlashDuration      time.Duration
	Roller             dice.Roller
	Journal            gate.Journal
	Store              SaveStore
	Logger             *log.Logger
}

// Registry wires every per-session component together.
type Registry struct {
	Scene      *scene.Scene
	Party      *party.Party
	Outcomes   *feedback.Outcomes
	Notes      *feedback.Notes
	Highlights *action.Highlighter
	Dispatcher *action.Dispatcher
	Stage      *gate.Stage
	Engine     *gate.Engine

	perceiver feedback.Perceiver
	store     SaveStore
	logger    *log.Logger

	autoResolve atomic.Bool
	tick        atomic.Uint64

	advMu       sync.Mutex
	lastAdvance time.Time
}

func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Scene == nil {
		opts.Scene = scene.New(scene.Spec{})
	}
	if opts.DefaultDC == 0 {
		opts.DefaultDC = dice.DefaultDC
	}

	r := &Registry{
		Scene:      opts.Scene,
		Party:      party.New(),
		Outcomes:   feedback.NewOutcomes(),
		Notes:      feedback.NewNotes(),
		Highlights: action.NewHighlighter(opts.FlashDuration),
		Stage:      gate.NewStage(opts.DefaultDC),
		store:      opts.Store,
		logger:     opts.Logger,
	}
	r.Dispatcher = action.NewDispatcher(r.Party, r.Highlights, opts.Logger)
	r.Engine = gate.NewEngine(r.Stage, gate.EngineConfig{
		Roller:             opts.Roller,
		Outcomes:           r.Outcomes,
		Executor:           r.Dispatcher,
		Flasher:            r.Highlights,
		Journal:            opts.Journal,
		Agents:             r.agentFor,
		RespectSuggestedDC: opts.RespectSuggestedDC,
		Logger:             opts.Logger,
	})
	r.perceiver = feedback.Perceiver{Outcomes: r.Outcomes, Notes: r.Notes}
	r.autoResolve.Store(opts.AutoResolve)

	for _, id := range r.Scene.Actors() {
		if b, ok := r.Scene.Body(id); ok {
			r.Party.SyncPosition(id, b.Position())
		}
	}
	return r
}

// agentFor returns nil, not a typed nil, for actors without a body.
func (r *Registry) agentFor(actorID string) action.Agent {
	b, ok := r.Scene.Body(actorID)
	if !ok {
		return nil
	}
	return b
}

func (r *Registry) SetAutoResolve(v bool) { r.autoResolve.Store(v) }

func (r *Registry) AutoResolve() bool { return r.autoResolve.Load() }

// HandleFrame processes one frame received from the gateway.
func (r *Registry) HandleFrame(_ context.Context, msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		r.logger.Printf("bad frame: %v", err)
		return err
	}
	switch base.Type {
	case protocol.TypeIntent:
		p, err := protocol.ValidateIntent(msg)
		if err != nil {
			r.logger.Printf("dropping invalid proposal: %v", err)
			return err
		}
		_, err = r.Receive(p)
		if errors.Is(err, gate.ErrNoAgent) || errors.Is(err, gate.ErrNothingStaged) {
			return nil
		}
		return err
	case protocol.TypeError:
		var em protocol.ErrorMsg
		_ = json.Unmarshal(msg, &em)
		if !protocol.IsKnownCode(em.Code) {
			return fmt.Errorf("gateway error %q (%s): %w", em.Code, em.Message, ErrUnknownCode)
		}
		r.logger.Printf("gateway error code=%s message=%s", em.Code, em.Message)
		return nil
	default:
		r.logger.Printf("ignoring frame type=%q", base.Type)
		return nil
	}
}

// Receive stages p for its actor, rolling it at once in auto-resolve mode.
// The returned Resolution is zero when the proposal was only staged.
func (r *Registry) Receive(p protocol.IntentProposal) (gate.Resolution, error) {
	if p.ActorID != "" {
		r.Party.Ensure(p.ActorID)
	}
	agent := r.agentFor(p.ActorID)
	if r.autoResolve.Load() {
		return r.Engine.StageAndResolve(p.ActorID, p, agent)
	}
	r.Stage.Stage(p.ActorID, p, agent)
	r.logger.Printf("staged actor=%s intent=%s candidates=%d", p.ActorID, p.Intent, len(p.CandidateActions))
	return gate.Resolution{}, nil
}

// Actors lists scene actors in registration order followed by any other
// actor the stage has seen.
func (r *Registry) Actors() []string {
	ids := r.Scene.Actors()
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range r.Stage.Actors() {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
			seen[id] = struct{}{}
		}
	}
	return ids
}

// Perceptions advances the scene to now and builds one PerceptionEvent per
// known actor, all sharing the same tick.
func (r *Registry) Perceptions(now time.Time) []protocol.PerceptionEvent {
	r.advMu.Lock()
	if !r.lastAdvance.IsZero() && now.After(r.lastAdvance) {
		r.Scene.Advance(now.Sub(r.lastAdvance))
	}
	r.lastAdvance = now
	r.advMu.Unlock()

	tick := r.tick.Add(1)
	actors := r.Actors()
	out := make([]protocol.PerceptionEvent, 0, len(actors))
	for _, id := range actors {
		if b, ok := r.Scene.Body(id); ok {
			r.Party.SyncPosition(id, b.Position())
		}
		spatial, world := r.Scene.Observe(id)
		out = append(out, r.perceiver.Build(id, tick, spatial, world))
	}
	return out
}

// ActorStatus is the operator view of one actor.
type ActorStatus struct {
	gate.ActorView
	Outcome     string      `json:"outcome,omitempty"`
	Note        string      `json:"note,omitempty"`
	Position    *mathx.Vec3 `json:"position,omitempty"`
	Destination *mathx.Vec3 `json:"destination,omitempty"`
	HP          int         `json:"hp,omitempty"`
	Inventory   []string    `json:"inventory,omitempty"`
	Highlight   string      `json:"highlight,omitempty"`
}

type Status struct {
	AutoResolve        bool          `json:"autoResolve"`
	RespectSuggestedDC bool          `json:"respectSuggestedDC"`
	DefaultDC          int           `json:"defaultDC"`
	Tick               uint64        `json:"tick"`
	Time               string        `json:"time,omitempty"`
	POIs               []string      `json:"pois,omitempty"`
	Actors             []ActorStatus `json:"actors"`
}

func (r *Registry) Status() Status {
	st := Status{
		AutoResolve:        r.autoResolve.Load(),
		RespectSuggestedDC: r.Engine.RespectSuggested(),
		DefaultDC:          r.Stage.DefaultDC(),
		Tick:               r.tick.Load(),
		Time:               r.Scene.Time(),
		POIs:               r.Scene.POIIDs(),
	}
	for _, id := range r.Actors() {
		var as ActorStatus
		if hl := r.Highlights.Current(id); hl != action.HighlightNone {
			as.Highlight = hl.String()
		}
		if v, ok := r.Stage.Snapshot(id); ok {
			as.ActorView = v
		} else {
			as.ActorID = id
			as.DC = st.DefaultDC
			as.Phase = gate.PhaseIdle.String()
		}
		as.Outcome, _ = r.Outcomes.GetLast(id)
		as.Note, _ = r.Notes.Get(id)
		if a, ok := r.Party.Get(id); ok {
			pos := a.Position
			as.Position = &pos
			as.HP = a.HP
			as.Inventory = a.Inventory
		}
		if b, ok := r.Scene.Body(id); ok {
			if d, walking := b.Destination(); walking {
				as.Destination = &d
			}
		}
		st.Actors = append(st.Actors, as)
	}
	return st
}

// Save writes the party and DM notes to the store.
func (r *Registry) Save(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, ErrNoStore
	}
	for _, id := range r.Scene.Actors() {
		if b, ok := r.Scene.Body(id); ok {
			r.Party.SyncPosition(id, b.Position())
		}
	}
	snap := savedb.Snapshot{
		SavedAt: time.Now(),
		Actors:  r.Party.Enumerate(),
		Notes:   r.Notes.All(),
	}
	if err := r.store.Save(ctx, snap); err != nil {
		return 0, fmt.Errorf("save: %w", err)
	}
	r.logger.Printf("saved actors=%d notes=%d", len(snap.Actors), len(snap.Notes))
	return len(snap.Actors), nil
}

// Load restores party state and DM notes and places bodies at the saved
// positions.
func (r *Registry) Load(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, ErrNoStore
	}
	snap, err := r.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load: %w", err)
	}
	for _, a := range snap.Actors {
		r.Party.Restore(a)
		if b, ok := r.Scene.Body(a.ID); ok {
			b.SetPosition(a.Position)
		}
	}
	for id, note := range snap.Notes {
		r.Notes.Set(id, note)
	}
	r.logger.Printf("loaded actors=%d notes=%d", len(snap.Actors), len(snap.Notes))
	return len(snap.Actors), nil
}

// Close stops pending highlight timers.
func (r *Registry) Close() {
	r.Highlights.Stop()
}
