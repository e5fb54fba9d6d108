package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The endpoint only talks to the paired wearable on a private link.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Endpoint is the companion side of the link: an http.Handler that upgrades
// the wearable's connection and dispatches inbound frames. At most one
// wearable connection is live at a time; a new connection replaces the
// previous one (the wearable reconnected before the old socket timed out).
//
// Endpoint is also a Sender: control commands queued with Send ride the same
// acknowledged outbox and survive reconnects.
type Endpoint struct {
	handler Handler
	out     *outbox
	notify  chan struct{}

	mu        sync.Mutex
	dropPrev  context.CancelFunc
	connected atomic.Bool
}

// NewEndpoint creates an Endpoint delivering inbound frames to handler.
func NewEndpoint(handler Handler) *Endpoint {
	return &Endpoint{
		handler: handler,
		out:     newOutbox(defaultOutboxLimit),
		notify:  make(chan struct{}, 1),
	}
}

// Send enqueues a frame toward the wearable. Never blocks.
func (e *Endpoint) Send(path string, payload []byte) error {
	e.out.add(path, payload)
	select {
	case e.notify <- struct{}{}:
	default:
	}
	return nil
}

// Connected reports whether a wearable connection is currently live.
func (e *Endpoint) Connected() bool { return e.connected.Load() }

// ServeHTTP upgrades the request and serves the wearable connection until it
// closes. Blocks for the lifetime of the connection.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	e.mu.Lock()
	if e.dropPrev != nil {
		e.dropPrev()
	}
	e.dropPrev = cancel
	e.mu.Unlock()

	slog.Info("transport: wearable connected",
		"remote", r.RemoteAddr, "pending", e.out.depth())
	e.connected.Store(true)

	l := &link{conn: conn, out: e.out, handler: e.handler, notify: e.notify}
	err = l.run(ctx)

	e.connected.Store(false)
	slog.Info("transport: wearable disconnected", "remote", r.RemoteAddr, "err", err)
}
