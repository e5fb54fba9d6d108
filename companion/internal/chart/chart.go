// Package chart holds the bounded most-recent-N sample view backing the
// live display. Purely a presentation aid: it has no durability requirement
// and plays no part in delivery correctness.
package chart

import (
	"sync"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// DefaultCapacity matches the historical chart window.
const DefaultCapacity = 100

// Ring is a fixed-capacity sample buffer; pushing past capacity evicts the
// oldest sample. Safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []wire.Sample
	head  int
	count int
}

// New creates a Ring. A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]wire.Sample, capacity)}
}

// Push appends samples, evicting the oldest on overflow.
func (r *Ring) Push(samples ...wire.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		if r.count < len(r.buf) {
			r.count++
		} else {
			r.head = (r.head + 1) % len(r.buf)
		}
	}
}

// Snapshot returns the buffered samples oldest-first.
func (r *Ring) Snapshot() []wire.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear empties the buffer. Called when a new session starts.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.count = 0, 0
}
