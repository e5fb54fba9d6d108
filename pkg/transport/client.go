package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0

	// defaultOutboxLimit bounds the unacknowledged backlog held in memory
	// while the peer is unreachable.
	defaultOutboxLimit = 512
)

// dialFunc opens a WebSocket connection to the companion endpoint.
// Abstracted so tests can inject an httptest-backed dialer.
type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Client is the wearable side of the link. Send is non-blocking; Run must be
// called in a goroutine to drive delivery and handle reconnection.
type Client struct {
	url       string
	handler   Handler
	out       *outbox
	notify    chan struct{}
	connected atomic.Bool
	dialFn    dialFunc
}

// ClientOption adjusts Client construction.
type ClientOption func(*Client)

// WithOutboxLimit overrides the unacknowledged frame limit.
func WithOutboxLimit(n int) ClientOption {
	return func(c *Client) { c.out = newOutbox(n) }
}

// NewClient creates a Client that connects to url and delivers inbound
// frames (control commands) to handler.
func NewClient(url string, handler Handler, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		handler: handler,
		out:     newOutbox(defaultOutboxLimit),
		notify:  make(chan struct{}, 1),
		dialFn:  defaultDial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send enqueues a frame for delivery. Never blocks; when the outbox is full
// the oldest unacknowledged frame is evicted.
func (c *Client) Send(path string, payload []byte) error {
	c.out.add(path, payload)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Connected reports whether a connection to the companion is currently live.
func (c *Client) Connected() bool { return c.connected.Load() }

// PendingFrames returns the unacknowledged backlog depth.
func (c *Client) PendingFrames() int { return c.out.depth() }

// Run connects to the companion and drives the link, reconnecting with
// truncated exponential backoff. Blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	bo := NewBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dialFn(ctx, c.url)
		if err != nil {
			wait := bo.Next()
			slog.Warn("transport: dial failed, will retry",
				"url", c.url, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("transport: connected", "url", c.url, "pending", c.out.depth())
		bo.Reset()
		c.connected.Store(true)

		l := &link{conn: conn, out: c.out, handler: c.handler, notify: c.notify}
		err = l.run(ctx)
		c.connected.Store(false)

		if ctx.Err() != nil {
			return
		}

		wait := bo.Next()
		slog.Warn("transport: connection lost, will reconnect",
			"url", c.url, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// Backoff implements truncated exponential backoff with jitter. Shared by
// every reconnecting link client in the system.
type Backoff struct {
	current time.Duration
}

// NewBackoff starts at 1s and doubles up to 60s.
func NewBackoff() *Backoff {
	return &Backoff{current: backoffInitial}
}

// Next returns the current backoff duration and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

// Reset returns the backoff to its initial duration after a success.
func (b *Backoff) Reset() {
	b.current = backoffInitial
}
