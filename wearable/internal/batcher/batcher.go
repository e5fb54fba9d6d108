package batcher

import (
	"sync"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// DefaultBatchSize matches the historical on-device batch size.
const DefaultBatchSize = 25

// EmitFunc receives one complete batch. seq increases by one per emission so
// the transport treats equal-looking payloads as distinct delivery units.
// EmitFunc must not block: it is called on the ingest path and is expected
// to be a transport enqueue.
type EmitFunc func(seq uint64, samples []wire.Sample)

// Batcher buffers samples under a single mutex and swaps the buffer out
// atomically when it reaches the configured size. Safe for concurrent use,
// though samples normally arrive from a single sensor callback goroutine.
type Batcher struct {
	mu   sync.Mutex
	size int
	buf  []wire.Sample
	seq  uint64
	emit EmitFunc
}

// New creates a Batcher emitting batches of the given size. A size below 1
// falls back to DefaultBatchSize.
func New(size int, emit EmitFunc) *Batcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Batcher{
		size: size,
		buf:  make([]wire.Sample, 0, size),
		emit: emit,
	}
}

// Ingest appends one sample. When the buffer reaches the batch size it is
// swapped for an empty one and emitted outside the lock.
func (b *Batcher) Ingest(s wire.Sample) {
	b.mu.Lock()
	b.buf = append(b.buf, s)
	if len(b.buf) < b.size {
		b.mu.Unlock()
		return
	}
	full := b.buf
	b.buf = make([]wire.Sample, 0, b.size)
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.emit(seq, full)
}

// Flush emits any buffered partial batch. Called on sampler shutdown so the
// session's trailing samples are not lost. No-op when the buffer is empty.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	partial := b.buf
	b.buf = make([]wire.Sample, 0, b.size)
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.emit(seq, partial)
}

// Len returns the number of samples currently buffered.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
