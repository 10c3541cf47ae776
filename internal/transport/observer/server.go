// Package observer streams session status and DM note changes to loopback
// operator tools over a websocket.
package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"brainlink.ai/internal/feedback"
	"brainlink.ai/internal/observerproto"
	"brainlink.ai/internal/session"
)

const (
	DefaultInterval = time.Second
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = 10 * time.Second

	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	noteQueue        = 64
)

// Source is the session surface the stream reads from.
type Source interface {
	Status() session.Status
	SubscribeNotes(fn func(feedback.NoteChange)) func()
}

type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		src: src,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		notes := make(chan feedback.NoteChange, noteQueue)
		unsubscribe := s.src.SubscribeNotes(func(c feedback.NoteChange) {
			select {
			case notes <- c:
			default:
				// Slow reader; the next STATUS frame carries every note anyway.
			}
		})
		defer unsubscribe()

		intervals := make(chan time.Duration, 1)
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- s.writeLoop(ctx, conn, interval(sub), intervals, notes)
		}()

		// Reader loop: allow SUBSCRIBE updates to change the interval.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			select {
			case intervals <- interval(sub):
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case err := <-writeErr:
			if err != nil && err != context.Canceled {
				s.log.Printf("observer write: %v", err)
			}
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, every time.Duration, intervals <-chan time.Duration, notes <-chan feedback.NoteChange) error {
	var seq uint64
	sendStatus := func() error {
		seq++
		return writeJSON(conn, observerproto.StatusMsg{
			Type:            observerproto.TypeStatus,
			ProtocolVersion: observerproto.Version,
			Seq:             seq,
			Status:          s.src.Status(),
		})
	}
	if err := sendStatus(); err != nil {
		return err
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-intervals:
			ticker.Reset(d)
		case <-ticker.C:
			if err := sendStatus(); err != nil {
				return err
			}
		case c := <-notes:
			err := writeJSON(conn, observerproto.NoteMsg{
				Type:            observerproto.TypeNote,
				ProtocolVersion: observerproto.Version,
				ActorID:         c.ActorID,
				Note:            c.Note,
			})
			if err != nil {
				return err
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func interval(sub observerproto.SubscribeMsg) time.Duration {
	if sub.IntervalMS <= 0 {
		return DefaultInterval
	}
	d := time.Duration(sub.IntervalMS) * time.Millisecond
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
