package transport

import (
	"log/slog"
	"sync"
)

// Handler receives one inbound frame. It is called on the link's read
// goroutine and must not block; hand heavy work off to a worker.
type Handler func(path string, payload []byte)

// Sender is the outbound half of a transport link.
type Sender interface {
	// Send enqueues a frame for best-effort, at-least-once delivery and
	// returns immediately. It never blocks on the network.
	Send(path string, payload []byte) error
}

// Frame is the wire envelope. Data frames carry Seq+Path+Payload; ack frames
// carry only Ack. Sequence numbers start at 1 so an Ack of 0 never occurs.
type Frame struct {
	Seq     uint64 `json:"seq,omitempty"`
	Path    string `json:"path,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Ack     uint64 `json:"ack,omitempty"`
}

// outbox tracks frames that have not been acknowledged yet. When the link
// reconnects, resetSent marks everything pending so the writer resends the
// full backlog in sequence order. Bounded: when the pending set exceeds the
// limit the oldest frame is evicted (the link is best-effort, not a durable
// queue — durability lives downstream).
type outbox struct {
	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]Frame
	order   []uint64
	sent    map[uint64]bool
	limit   int
}

func newOutbox(limit int) *outbox {
	return &outbox{
		pending: make(map[uint64]Frame),
		sent:    make(map[uint64]bool),
		limit:   limit,
	}
}

// add assigns the next sequence number and stores the frame, evicting the
// oldest pending frame when the buffer is full.
func (o *outbox) add(path string, payload []byte) Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextSeq++
	f := Frame{Seq: o.nextSeq, Path: path, Payload: payload}
	o.pending[f.Seq] = f
	o.order = append(o.order, f.Seq)

	if len(o.order) > o.limit {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.pending, oldest)
		delete(o.sent, oldest)
		slog.Warn("transport: outbox full, evicted oldest frame",
			"evicted_seq", oldest, "limit", o.limit)
	}
	return f
}

// ack drops the frame with the given sequence number.
func (o *outbox) ack(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pending[seq]; !ok {
		return
	}
	delete(o.pending, seq)
	delete(o.sent, seq)
	for i, s := range o.order {
		if s == seq {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// takeUnsent returns pending frames not yet written on the current
// connection, in sequence order, marking them sent.
func (o *outbox) takeUnsent() []Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Frame
	for _, seq := range o.order {
		if o.sent[seq] {
			continue
		}
		o.sent[seq] = true
		out = append(out, o.pending[seq])
	}
	return out
}

// resetSent marks every pending frame unsent. Called on reconnect so the
// whole unacknowledged backlog is replayed.
func (o *outbox) resetSent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.sent)
}

// depth returns the number of pending (unacknowledged) frames.
func (o *outbox) depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}
