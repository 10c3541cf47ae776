package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"brainlink.ai/internal/protocol"
)

type fixedSource struct{ actors []string }

func (s fixedSource) Perceptions(time.Time) []protocol.PerceptionEvent {
	out := make([]protocol.PerceptionEvent, 0, len(s.actors))
	for _, id := range s.actors {
		out = append(out, protocol.PerceptionEvent{Type: protocol.TypePerception, ActorID: id})
	}
	return out
}

type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}
}

func newFrameRecorder() *frameRecorder { return &frameRecorder{notify: make(chan struct{}, 64)} }

func (r *frameRecorder) HandleFrame(_ context.Context, msg []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, append([]byte(nil), msg...))
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *frameRecorder) actors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames {
		p, err := protocol.ValidateIntent(f)
		if err != nil {
			continue
		}
		out = append(out, p.ActorID)
	}
	return out
}

func (r *frameRecorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if len(r.actors()) >= n {
			return
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d proposals, got %v", n, r.actors())
		}
	}
}

func TestClient_HeartbeatAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(NewServer(nil, nil, nil, 0).Handler())
	defer srv.Close()

	rec := newFrameRecorder()
	c := &Client{
		URL:       wsURL(srv.URL),
		Heartbeat: 10 * time.Millisecond,
		Handler:   rec,
		Source:    fixedSource{actors: []string{"adv-1", "adv-2", "adv-3"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, 6)
	got := rec.actors()
	want := []string{"adv-1", "adv-2", "adv-3", "adv-1", "adv-2", "adv-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("proposal order: got %v", got)
		}
	}
	if !c.Connected() {
		t.Fatalf("expected connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if c.Connected() {
		t.Fatalf("expected disconnected after cancel")
	}
}

func TestClient_InitialDialFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv.URL)
	srv.Close()

	c := &Client{URL: url, Reconnect: Backoff{Enabled: true, Initial: time.Millisecond}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err == nil {
		t.Fatalf("expected dial error")
	}
	if c.Sessions() != 0 {
		t.Fatalf("no session should have started")
	}
}

// dropOnce closes the first connection right after the upgrade and serves
// later ones normally.
type dropOnce struct {
	mu    sync.Mutex
	calls int
	next  http.Handler
}

func (d *dropOnce) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.calls++
	first := d.calls == 1
	d.mu.Unlock()
	if !first {
		d.next.ServeHTTP(rw, r)
		return
	}
	up := NewServer(nil, nil, nil, 0).upgrader
	conn, err := up.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	_ = conn.Close()
}

func TestClient_ReconnectAfterDrop(t *testing.T) {
	srv := httptest.NewServer(&dropOnce{next: NewServer(nil, nil, nil, 0).Handler()})
	defer srv.Close()

	rec := newFrameRecorder()
	c := &Client{
		URL:       wsURL(srv.URL),
		Heartbeat: 10 * time.Millisecond,
		Handler:   rec,
		Source:    fixedSource{actors: []string{"adv-1"}},
		Reconnect: Backoff{Enabled: true, Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, 1)
	if c.Sessions() < 2 {
		t.Fatalf("expected a second session, got %d", c.Sessions())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestClient_DropWithoutReconnectReturnsError(t *testing.T) {
	srv := httptest.NewServer(&dropOnce{next: http.NotFoundHandler()})
	defer srv.Close()

	c := &Client{URL: wsURL(srv.URL), Heartbeat: 10 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err == nil {
		t.Fatalf("expected session error")
	}
	if c.Sessions() != 1 {
		t.Fatalf("sessions=%d", c.Sessions())
	}
}
