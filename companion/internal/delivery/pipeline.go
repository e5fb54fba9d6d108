package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/gateway"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

const (
	// maxBuffered bounds batches held while waiting for the session id.
	// At 25 samples per batch and 50 Hz this covers over a minute.
	maxBuffered = 128

	// workDepth bounds batches waiting on the single send worker.
	workDepth = 256

	// DefaultDirectTimeout caps one direct send attempt.
	DefaultDirectTimeout = 10 * time.Second
)

// Sender is the direct upload path to the server.
type Sender interface {
	UploadBatch(ctx context.Context, subjectID string, sessionID int64, samples []wire.Sample) error
}

// Inserter is the durable fallback for failed direct sends.
type Inserter interface {
	Insert(ctx context.Context, sessionID int64, subjectID string, payload []byte) error
}

// Kicker wakes the retry uploader after a batch lands in the queue.
type Kicker interface {
	Kick()
}

type mode int

const (
	modeIdle mode = iota
	modeBuffering
	modeActive
)

type job struct {
	sessionID int64
	subjectID string
	samples   []wire.Sample
}

// Pipeline routes incoming sensor batches according to the session phase:
// dropped while idle, buffered in memory while the session id is pending,
// and sent by a single ordered worker once active. Direct-send failures
// fall through to the durable queue.
type Pipeline struct {
	direct   Sender
	backlog  Inserter
	uploader Kicker
	timeout  time.Duration

	mu        sync.Mutex
	mode      mode
	subjectID string
	sessionID int64
	buffered  [][]wire.Sample

	work chan job
}

func NewPipeline(direct Sender, backlog Inserter, uploader Kicker, directTimeout time.Duration) *Pipeline {
	if directTimeout <= 0 {
		directTimeout = DefaultDirectTimeout
	}
	return &Pipeline{
		direct:   direct,
		backlog:  backlog,
		uploader: uploader,
		timeout:  directTimeout,
		work:     make(chan job, workDepth),
	}
}

// Begin opens the buffering window for a newly requested session.
func (p *Pipeline) Begin(subjectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = modeBuffering
	p.subjectID = subjectID
	p.sessionID = 0
	p.buffered = p.buffered[:0]
}

// Activate binds the server-assigned session id and releases everything
// buffered during the handshake, in arrival order.
func (p *Pipeline) Activate(sessionID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != modeBuffering {
		return
	}
	p.mode = modeActive
	p.sessionID = sessionID
	for _, samples := range p.buffered {
		p.enqueueLocked(job{sessionID: sessionID, subjectID: p.subjectID, samples: samples})
	}
	p.buffered = p.buffered[:0]
}

// Reset returns the pipeline to idle and drops anything buffered. Jobs
// already handed to the worker are skipped there by session id.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = modeIdle
	p.sessionID = 0
	p.subjectID = ""
	p.buffered = p.buffered[:0]
}

// Dispatch accepts one decoded sensor batch. Never blocks; the caller is
// the wearable link's read path.
func (p *Pipeline) Dispatch(samples []wire.Sample) {
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.mode {
	case modeIdle:
		metrics.BatchesDropped.WithLabelValues("no_session").Inc()
		slog.Warn("delivery: batch dropped, no session in progress", "samples", len(samples))

	case modeBuffering:
		if len(p.buffered) >= maxBuffered {
			p.buffered = p.buffered[1:]
			metrics.BatchesDropped.WithLabelValues("buffer_full").Inc()
			slog.Warn("delivery: handshake buffer full, evicted oldest batch")
		}
		p.buffered = append(p.buffered, samples)

	case modeActive:
		p.enqueueLocked(job{sessionID: p.sessionID, subjectID: p.subjectID, samples: samples})
	}
}

func (p *Pipeline) enqueueLocked(j job) {
	select {
	case p.work <- j:
	default:
		metrics.BatchesDropped.WithLabelValues("worker_backlog").Inc()
		slog.Warn("delivery: send worker backlog full, batch dropped",
			"session_id", j.sessionID, "samples", len(j.samples))
	}
}

// Run is the single send worker. One goroutine preserves per-session batch
// order on the direct path.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.work:
			p.mu.Lock()
			stale := p.mode != modeActive || p.sessionID != j.sessionID
			p.mu.Unlock()
			if stale {
				metrics.BatchesDropped.WithLabelValues("stale_session").Inc()
				continue
			}
			p.deliver(ctx, j)
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, j job) {
	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.direct.UploadBatch(sendCtx, j.subjectID, j.sessionID, j.samples)
	cancel()

	if err == nil {
		metrics.BatchesSentDirect.Inc()
		return
	}

	if gateway.IsRejected(err) {
		metrics.BatchesDropped.WithLabelValues("rejected").Inc()
		slog.Warn("delivery: batch rejected by server, discarding",
			"session_id", j.sessionID, "err", err)
		return
	}

	// The session can end while the send is in flight; a row written now
	// would outlive the stop purge.
	p.mu.Lock()
	current := p.mode == modeActive && p.sessionID == j.sessionID
	p.mu.Unlock()
	if !current {
		metrics.BatchesDropped.WithLabelValues("stale_session").Inc()
		slog.Warn("delivery: send failed after session ended, batch dropped",
			"session_id", j.sessionID, "err", err)
		return
	}

	payload, encErr := wire.EncodeSamples(j.samples)
	if encErr != nil {
		metrics.BatchesDropped.WithLabelValues("encode").Inc()
		slog.Error("delivery: batch not encodable, lost", "err", encErr)
		return
	}

	if insErr := p.backlog.Insert(ctx, j.sessionID, j.subjectID, payload); insErr != nil {
		metrics.BatchesDropped.WithLabelValues("persist").Inc()
		slog.Error("delivery: direct send failed and queue insert failed, batch lost",
			"session_id", j.sessionID, "send_err", err, "queue_err", insErr)
		return
	}

	metrics.BatchesQueued.Inc()
	slog.Info("delivery: batch queued for retry",
		"session_id", j.sessionID, "samples", len(j.samples), "err", err)
	p.uploader.Kick()
}
