package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single write to the peer.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 1 << 20
)

// link runs the read/write pumps for one live WebSocket connection, shared
// by Client and Endpoint. It replays the outbox backlog on start, forwards
// inbound data frames to the handler, and exchanges acks bidirectionally.
type link struct {
	conn    *websocket.Conn
	out     *outbox
	handler Handler
	notify  <-chan struct{}
}

// run blocks until ctx is cancelled or the connection fails. Always closes
// the connection before returning.
func (l *link) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer l.conn.Close()

	// Replay everything unacknowledged from previous connections.
	l.out.resetSent()

	acks := make(chan uint64, 64)
	readErr := make(chan error, 1)

	go func() { readErr <- l.readPump(ctx, acks) }()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// Flush the backlog immediately, then on every notify.
	if err := l.writeUnsent(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			l.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return ctx.Err()

		case err := <-readErr:
			return err

		case seq := <-acks:
			if err := l.writeFrame(Frame{Ack: seq}); err != nil {
				return err
			}

		case <-l.notify:
			if err := l.writeUnsent(); err != nil {
				return err
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (l *link) writeUnsent() error {
	for _, f := range l.out.takeUnsent() {
		if err := l.writeFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *link) writeFrame(f Frame) error {
	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.conn.WriteJSON(f)
}

// readPump reads frames until the connection closes. Inbound acks clear the
// outbox; inbound data frames are handed to the handler and queued for
// acknowledgment on the write side.
func (l *link) readPump(ctx context.Context, acks chan<- uint64) error {
	l.conn.SetReadLimit(maxFrameSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f Frame
		if err := l.conn.ReadJSON(&f); err != nil {
			return err
		}
		l.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch {
		case f.Ack != 0:
			l.out.ack(f.Ack)
		case f.Seq != 0:
			if l.handler != nil {
				l.handler(f.Path, f.Payload)
			}
			select {
			case acks <- f.Seq:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
