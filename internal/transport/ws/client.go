package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"brainlink.ai/internal/protocol"
)

const (
	DefaultHeartbeat = 2 * time.Second

	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

// FrameHandler consumes every frame the gateway sends.
type FrameHandler interface {
	HandleFrame(ctx context.Context, msg []byte) error
}

// PerceptionSource produces the events sent on each heartbeat, one per actor.
type PerceptionSource interface {
	Perceptions(now time.Time) []protocol.PerceptionEvent
}

// Backoff configures redialing after a session drops. The zero value never
// redials.
type Backoff struct {
	Enabled     bool
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Client is the host-side session against the gateway.
type Client struct {
	URL       string
	Heartbeat time.Duration
	Reconnect Backoff
	Handler   FrameHandler
	Source    PerceptionSource
	Logger    *log.Logger
	Dialer    *websocket.Dialer

	mu        sync.RWMutex
	connected bool
	sessions  int
}

func (c *Client) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return c.Logger
}

// Connected reports whether a websocket is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Sessions counts successful dials.
func (c *Client) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	if v {
		c.sessions++
	}
	c.mu.Unlock()
}

// Run dials the gateway and serves the session until ctx is done. A failed
// first dial is returned immediately. With Reconnect enabled a dropped session
// is redialed with exponential backoff; otherwise the session error is
// returned. Cancellation returns nil.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	for {
		err := c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if !c.Reconnect.Enabled {
			return err
		}
		c.logger().Printf("session dropped: %v", err)
		conn, err = c.redial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	d := c.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, _, err := d.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, err
	}
	c.logger().Printf("connected url=%s", c.URL)
	return conn, nil
}

func (c *Client) redial(ctx context.Context) (*websocket.Conn, error) {
	delay := c.Reconnect.Initial
	if delay <= 0 {
		delay = defaultBackoffInitial
	}
	maxDelay := c.Reconnect.Max
	if maxDelay <= 0 {
		maxDelay = defaultBackoffMax
	}
	var lastErr error
	for attempt := 1; c.Reconnect.MaxAttempts <= 0 || attempt <= c.Reconnect.MaxAttempts; attempt++ {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.logger().Printf("redial attempt=%d err=%v", attempt, err)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return nil, fmt.Errorf("redial %s: giving up after %d attempts: %w", c.URL, c.Reconnect.MaxAttempts, lastErr)
}

// serve runs the receive and heartbeat loops on conn until either fails or
// ctx is cancelled, then closes conn.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.setConnected(true)
	defer c.setConnected(false)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		errs <- c.receive(sctx, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		errs <- c.heartbeat(sctx, conn, &writeMu)
	}()

	<-sctx.Done()
	if ctx.Err() != nil {
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		writeMu.Unlock()
	}
	_ = conn.Close()
	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Client) receive(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if c.Handler == nil {
			continue
		}
		if err := c.Handler.HandleFrame(ctx, msg); err != nil {
			c.logger().Printf("frame: %v", err)
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) error {
	every := c.Heartbeat
	if every <= 0 {
		every = DefaultHeartbeat
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if c.Source == nil {
				continue
			}
			for _, evt := range c.Source.Perceptions(now) {
				b, err := json.Marshal(evt)
				if err != nil {
					c.logger().Printf("encode perception actor=%s: %v", evt.ActorID, err)
					continue
				}
				writeMu.Lock()
				err = writeFrame(conn, b)
				writeMu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("write: %w", err)
				}
			}
		}
	}
}
