package transport

import (
	"errors"
	"sync"
)

// ErrPipeClosed is returned by Send after Close.
var ErrPipeClosed = errors.New("transport: pipe closed")

type pipeFrame struct {
	path    string
	payload []byte
}

// Pipe is an in-process transport link for tests and single-process
// deployments. Frames sent before Bind are buffered; Bind starts a single
// delivery goroutine so per-path arrival order is preserved.
type Pipe struct {
	queue chan pipeFrame

	mu      sync.Mutex
	handler Handler
	started bool
	closed  bool
	done    chan struct{}
}

// NewPipe creates a Pipe buffering up to n frames. Send drops the new frame
// with an error when the buffer is full and unbound.
func NewPipe(n int) *Pipe {
	return &Pipe{
		queue: make(chan pipeFrame, n),
		done:  make(chan struct{}),
	}
}

// Send enqueues a frame. The payload is copied so callers may reuse buffers.
func (p *Pipe) Send(path string, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	p.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case p.queue <- pipeFrame{path: path, payload: buf}:
		return nil
	default:
		return errors.New("transport: pipe buffer full")
	}
}

// Bind attaches the receive handler and starts delivery. Calling Bind more
// than once replaces the handler.
func (p *Pipe) Bind(h Handler) {
	p.mu.Lock()
	p.handler = h
	start := !p.started && !p.closed
	p.started = p.started || start
	p.mu.Unlock()

	if start {
		go p.deliver()
	}
}

func (p *Pipe) deliver() {
	for {
		select {
		case <-p.done:
			return
		case f := <-p.queue:
			p.mu.Lock()
			h := p.handler
			p.mu.Unlock()
			if h != nil {
				h(f.path, f.payload)
			}
		}
	}
}

// Close stops delivery. Pending frames are discarded.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}
