package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/protocol"
)

const (
	readIdle     = 60 * time.Second
	writeTimeout = 5 * time.Second
	outQueue     = 16

	// DefaultReadLimit caps a single inbound frame.
	DefaultReadLimit = 1 << 20
)

const onlyPerception = "Only PerceptionEvent is accepted at this endpoint"

// DecisionWriter persists one decision per answered perception.
type DecisionWriter interface {
	WriteDecision(brain.Decision) error
}

// Server is the gateway endpoint: every inbound frame gets exactly one reply,
// either an IntentProposal or an Error.
type Server struct {
	policy    brain.Policy
	decisions DecisionWriter
	log       *log.Logger
	readLimit int64

	upgrader websocket.Upgrader
}

func NewServer(policy brain.Policy, decisions DecisionWriter, logger *log.Logger, readLimit int64) *Server {
	if policy == nil {
		policy = brain.PolicyFunc(brain.SelectIntent)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &Server{
		policy:    policy,
		decisions: decisions,
		log:       logger,
		readLimit: readLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.readLimit)

		sessionID := uuid.NewString()
		s.log.Printf("session open id=%s remote=%s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outQueue)
		writerDone := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					if err := writeFrame(conn, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readIdle))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.reply(sessionID, msg)
			select {
			case out <- reply:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		<-writerDone
		s.log.Printf("session closed id=%s", sessionID)
	}
}

// reply computes the single response frame for msg.
func (s *Server) reply(sessionID string, msg []byte) []byte {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorFrame(protocol.ErrProtoBadRequest, "bad json: "+err.Error())
	}
	if base.Type != protocol.TypePerception {
		return errorFrame(protocol.ErrProtoBadRequest, onlyPerception)
	}
	evt, err := protocol.ValidatePerception(msg)
	if err != nil {
		return errorFrame(protocol.ErrBadRequest, err.Error())
	}
	for _, o := range evt.Observations {
		if note, ok := o.DMNote(); ok {
			s.log.Printf("dm note actor=%s note=%q", evt.ActorID, note)
		}
	}

	p := s.policy.Propose(evt)
	if p.ActorID == "" {
		p.ActorID = evt.ActorID
	}
	b, err := protocol.EncodeIntent(p)
	if err != nil {
		s.log.Printf("refusing to send proposal actor=%s err=%v", evt.ActorID, err)
		return errorFrame(protocol.ErrInternal, err.Error())
	}
	if s.decisions != nil {
		d := brain.Decision{Time: time.Now().UTC(), SessionID: sessionID, ActorID: evt.ActorID, Perception: evt, Proposal: p}
		if err := s.decisions.WriteDecision(d); err != nil {
			s.log.Printf("decision log: %v", err)
		}
	}
	return b
}

func errorFrame(code, message string) []byte {
	b, _ := json.Marshal(protocol.NewError(code, message))
	return b
}

func writeFrame(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
