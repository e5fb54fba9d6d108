package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/transport"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

const (
	duplexWriteTimeout = 10 * time.Second
	duplexPongWait     = 60 * time.Second
	duplexPingPeriod   = (duplexPongWait * 9) / 10

	// eventBufSize bounds the outgoing event queue while disconnected.
	// Events are control metadata, not sample data — dropping the oldest
	// under pressure is acceptable.
	eventBufSize = 64
)

// Events holds the callbacks invoked for server-pushed duplex events.
// Callbacks run on the read goroutine and must not block. Nil callbacks
// are skipped.
type Events struct {
	// OnConnect fires after every (re)connect, before any reads. The
	// session controller uses it to register and, when a session is
	// active, emit the resume handshake.
	OnConnect func()

	// OnStartMonitoring delivers the server-assigned session id.
	OnStartMonitoring func(sessionID int64)

	// OnStopMonitoring is the server-issued stop command.
	OnStopMonitoring func()

	// OnSetActivePatient is the server-driven patient selection.
	OnSetActivePatient func(id, name string)
}

// Duplex maintains the event channel to the aggregation server,
// reconnecting with truncated exponential backoff. Emit is non-blocking;
// queued events are flushed once a connection is live.
type Duplex struct {
	url       string
	events    Events
	out       chan wire.Event
	connected atomic.Bool
	dialFn    func(ctx context.Context, url string) (*websocket.Conn, error)
}

// NewDuplex creates a Duplex for the server socket at wsURL
// (e.g. "ws://monitor.example.org:5000/socket").
func NewDuplex(wsURL string, events Events) *Duplex {
	return &Duplex{
		url:    wsURL,
		events: events,
		out:    make(chan wire.Event, eventBufSize),
		dialFn: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Emit queues an event for the server. When the buffer is full the oldest
// queued event is evicted so the freshest state wins. Never blocks; callers
// include the wearable link's read path.
func (d *Duplex) Emit(name string, data any) error {
	ev, err := wire.NewEvent(name, data)
	if err != nil {
		return err
	}

	select {
	case d.out <- ev:
	default:
		select {
		case dropped := <-d.out:
			slog.Warn("duplex: event buffer full, evicted oldest",
				"evicted", dropped.Name, "queued", name)
		default:
		}
		// A racing emitter may have refilled the freed slot; dropping the
		// new event is better than blocking the caller.
		select {
		case d.out <- ev:
		default:
			slog.Warn("duplex: event buffer full, event dropped", "event", name)
		}
	}
	return nil
}

// Connected reports whether the server socket is currently live. The retry
// uploader uses this as its connectivity constraint.
func (d *Duplex) Connected() bool { return d.connected.Load() }

// Run drives the connection until ctx is cancelled.
func (d *Duplex) Run(ctx context.Context) {
	bo := transport.NewBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := d.dialFn(ctx, d.url)
		if err != nil {
			wait := bo.Next()
			slog.Warn("duplex: dial failed, will retry",
				"url", d.url, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("duplex: connected", "url", d.url)
		bo.Reset()
		d.connected.Store(true)

		if d.events.OnConnect != nil {
			d.events.OnConnect()
		}

		err = d.session(ctx, conn)
		d.connected.Store(false)

		if ctx.Err() != nil {
			return
		}

		wait := bo.Next()
		slog.Warn("duplex: connection lost, will reconnect",
			"url", d.url, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs the read and write pumps for one live connection.
func (d *Duplex) session(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- d.readPump(conn) }()

	ticker := time.NewTicker(duplexPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(duplexWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return ctx.Err()

		case err := <-readErr:
			return err

		case ev := <-d.out:
			conn.SetWriteDeadline(time.Now().Add(duplexWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return err
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(duplexWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (d *Duplex) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(duplexPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(duplexPongWait))
		return nil
	})

	for {
		var ev wire.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(duplexPongWait))
		d.dispatch(ev)
	}
}

func (d *Duplex) dispatch(ev wire.Event) {
	switch ev.Name {
	case wire.EventStartMonitoring:
		var start wire.StartMonitoring
		if err := ev.Decode(&start); err != nil {
			slog.Error("duplex: bad start_monitoring payload", "err", err)
			return
		}
		if d.events.OnStartMonitoring != nil {
			d.events.OnStartMonitoring(start.SessionID)
		}

	case wire.EventStopMonitoring:
		if d.events.OnStopMonitoring != nil {
			d.events.OnStopMonitoring()
		}

	case wire.EventSetActivePatient:
		var p wire.SetActivePatient
		if err := ev.Decode(&p); err != nil {
			slog.Error("duplex: bad set_active_patient payload", "err", err)
			return
		}
		if d.events.OnSetActivePatient != nil {
			d.events.OnSetActivePatient(p.ID, p.Name)
		}

	default:
		slog.Debug("duplex: ignoring unknown event", "event", ev.Name)
	}
}
