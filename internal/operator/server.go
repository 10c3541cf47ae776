// Package operator serves the host command listener: the dice-gate controls
// driven over HTTP by the relay or by hand.
package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"brainlink.ai/internal/gate"
	"brainlink.ai/internal/session"
)

// Backend is the session surface the listener drives.
type Backend interface {
	Status() session.Status
	Roll(actorID string) (gate.Resolution, error)
	Reroll(actorID string) (gate.Resolution, error)
	SetDC(actorID string, dc int) int
	SetRespectSuggested(bool)
	RespectSuggested() bool
	SetAutoResolve(bool)
	AutoResolve() bool
	CycleCandidate(actorID string, delta int) (int, bool)
	SelectCandidate(actorID string, index int) (int, bool)
	Narrate(actorID, note string)
	SetHP(actorID string, hp int)
	GiveItem(actorID, item string)
	SetTime(t string)
	Save(ctx context.Context) (int, error)
	Load(ctx context.Context) (int, error)
}

// Link reports the gateway connection, when the host has one.
type Link interface {
	Connected() bool
	Sessions() int
}

type Config struct {
	Backend    Backend
	Link       Link
	HMACSecret string
	Logger     *log.Logger
}

type Server struct {
	backend    Backend
	link       Link
	hmacSecret []byte
	replay     *replayGuard
	log        *log.Logger
	now        func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("nil backend")
	}
	s := &Server{
		backend: cfg.Backend,
		link:    cfg.Link,
		log:     cfg.Logger,
		now:     time.Now,
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.replay = newReplayGuard(0)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/command", s.handleCommand)
	return mux
}

// Command is the body of POST /command.
type Command struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

// toolError carries the HTTP status for a refused command.
type toolError struct {
	status int
	msg    string
}

func (e *toolError) Error() string { return e.msg }

func badInput(format string, args ...any) error {
	return &toolError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) handleCommand(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeText(rw, http.StatusBadRequest, "bad body")
		return
	}
	_ = r.Body.Close()

	// Optional HMAC auth.
	if len(s.hmacSecret) > 0 {
		now := s.now()
		vr := verifyHMAC(r, body, s.hmacSecret, now)
		if vr.HTTPStatus != 0 {
			writeText(rw, vr.HTTPStatus, vr.Message)
			return
		}
		if !s.replay.allow(vr.Caller, vr.Signature, now) {
			writeText(rw, http.StatusUnauthorized, "replayed request")
			return
		}
	}

	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		writeText(rw, http.StatusBadRequest, "bad command: "+err.Error())
		return
	}
	if !isKnownTool(cmd.Tool) {
		writeText(rw, http.StatusBadRequest, "unknown tool: "+cmd.Tool)
		return
	}

	out, err := s.callTool(r.Context(), cmd.Tool, cmd.Input)
	if err != nil {
		s.log.Printf("command tool=%s err=%v", cmd.Tool, err)
		var te *toolError
		switch {
		case errors.As(err, &te):
			writeText(rw, te.status, te.msg)
		case errors.Is(err, gate.ErrNothingStaged), errors.Is(err, gate.ErrNoAgent), errors.Is(err, session.ErrNoStore):
			writeText(rw, http.StatusConflict, err.Error())
		default:
			writeText(rw, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.log.Printf("command tool=%s ok", cmd.Tool)
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(out)
}

type actorInput struct {
	ActorID string `json:"actorId"`
}

type dcInput struct {
	ActorID string `json:"actorId"`
	DC      *int   `json:"dc"`
}

type toggleInput struct {
	Enabled *bool `json:"enabled"`
}

type cycleInput struct {
	ActorID string `json:"actorId"`
	Delta   *int   `json:"delta"`
	Index   *int   `json:"index"`
}

type narrateInput struct {
	ActorID string `json:"actorId"`
	Note    string `json:"note"`
}

type hpInput struct {
	ActorID string `json:"actorId"`
	HP      *int   `json:"hp"`
}

type itemInput struct {
	ActorID string `json:"actorId"`
	Item    string `json:"item"`
}

type timeInput struct {
	Time string `json:"time"`
}

// GatewayStatus is the link part of the status reply.
type GatewayStatus struct {
	Connected bool `json:"connected"`
	Sessions  int  `json:"sessions"`
}

// StatusReply is the reply to status. The session fields sit at the top
// level.
type StatusReply struct {
	session.Status
	Gateway *GatewayStatus `json:"gateway,omitempty"`
}

// RollResult is the reply to roll and reroll.
type RollResult struct {
	ActorID        string `json:"actorId"`
	Roll           int    `json:"roll"`
	DC             int    `json:"dc"`
	Success        bool   `json:"success"`
	CandidateIndex int    `json:"candidateIndex"`
	Action         string `json:"action,omitempty"`
	Moved          bool   `json:"moved,omitempty"`
	Via            string `json:"via,omitempty"`
	Unhandled      bool   `json:"unhandled,omitempty"`
	Error          string `json:"error,omitempty"`
}

func rollResult(res gate.Resolution) RollResult {
	out := RollResult{
		ActorID:        res.ActorID,
		Roll:           res.Roll,
		DC:             res.DC,
		Success:        res.Success,
		CandidateIndex: res.CandidateIndex,
	}
	if res.Candidate != nil {
		out.Action = res.Candidate.Action
		out.Moved = res.Effect.Moved
		out.Via = string(res.Effect.Via)
		out.Unhandled = res.Effect.Unhandled
		if res.Effect.Err != nil {
			out.Error = res.Effect.Err.Error()
		}
	}
	return out
}

func decodeInput(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badInput("bad input: %v", err)
	}
	return nil
}

func requireActor(id string) error {
	if strings.TrimSpace(id) == "" {
		return badInput("missing actorId")
	}
	return nil
}

func (s *Server) callTool(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	switch name {
	case "status":
		out := StatusReply{Status: s.backend.Status()}
		if s.link != nil {
			out.Gateway = &GatewayStatus{Connected: s.link.Connected(), Sessions: s.link.Sessions()}
		}
		return out, nil

	case "roll", "reroll":
		var in actorInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if err := requireActor(in.ActorID); err != nil {
			return nil, err
		}
		roll := s.backend.Roll
		if name == "reroll" {
			roll = s.backend.Reroll
		}
		res, err := roll(in.ActorID)
		if err != nil {
			return nil, err
		}
		return rollResult(res), nil

	case "set_dc":
		var in dcInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if in.DC == nil {
			return nil, badInput("missing dc")
		}
		return map[string]any{"actorId": in.ActorID, "dc": s.backend.SetDC(in.ActorID, *in.DC)}, nil

	case "respect_suggested_dc":
		var in toggleInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		v := !s.backend.RespectSuggested()
		if in.Enabled != nil {
			v = *in.Enabled
		}
		s.backend.SetRespectSuggested(v)
		return map[string]any{"enabled": v}, nil

	case "auto_resolve":
		var in toggleInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		v := !s.backend.AutoResolve()
		if in.Enabled != nil {
			v = *in.Enabled
		}
		s.backend.SetAutoResolve(v)
		return map[string]any{"enabled": v}, nil

	case "cycle_candidate":
		var in cycleInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if err := requireActor(in.ActorID); err != nil {
			return nil, err
		}
		var (
			idx int
			ok  bool
		)
		if in.Index != nil {
			idx, ok = s.backend.SelectCandidate(in.ActorID, *in.Index)
		} else {
			delta := 1
			if in.Delta != nil {
				delta = *in.Delta
			}
			idx, ok = s.backend.CycleCandidate(in.ActorID, delta)
		}
		if !ok {
			return nil, fmt.Errorf("cycle %s: %w", in.ActorID, gate.ErrNothingStaged)
		}
		return map[string]any{"actorId": in.ActorID, "candidateIndex": idx}, nil

	case "narrate":
		var in narrateInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if err := requireActor(in.ActorID); err != nil {
			return nil, err
		}
		s.backend.Narrate(in.ActorID, in.Note)
		return map[string]any{"actorId": in.ActorID, "note": in.Note}, nil

	case "set_hp":
		var in hpInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if err := requireActor(in.ActorID); err != nil {
			return nil, err
		}
		if in.HP == nil {
			return nil, badInput("missing hp")
		}
		s.backend.SetHP(in.ActorID, *in.HP)
		return map[string]any{"actorId": in.ActorID, "hp": *in.HP}, nil

	case "give_item":
		var in itemInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		if err := requireActor(in.ActorID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Item) == "" {
			return nil, badInput("missing item")
		}
		s.backend.GiveItem(in.ActorID, in.Item)
		return map[string]any{"actorId": in.ActorID, "item": in.Item}, nil

	case "set_time":
		var in timeInput
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		s.backend.SetTime(in.Time)
		return map[string]any{"time": in.Time}, nil

	case "save":
		n, err := s.backend.Save(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"actors": n}, nil

	case "load":
		n, err := s.backend.Load(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"actors": n}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func isKnownTool(name string) bool {
	switch name {
	case "status",
		"roll",
		"reroll",
		"set_dc",
		"respect_suggested_dc",
		"auto_resolve",
		"cycle_candidate",
		"narrate",
		"set_hp",
		"give_item",
		"set_time",
		"save",
		"load":
		return true
	default:
		return false
	}
}

func writeText(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("content-type", "text/plain; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write([]byte(msg))
}
