package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/gateway"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/queue"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

const (
	// DefaultFetchWindow is how many rows one drain pass reads.
	DefaultFetchWindow = 20

	// DefaultRetryBackoff is the pause after a pass hit an unreachable
	// server before trying again.
	DefaultRetryBackoff = 30 * time.Second
)

// Backlog is the durable queue side the uploader consumes.
type Backlog interface {
	OldestPending(ctx context.Context, limit int) ([]queue.PendingBatch, error)
	Delete(ctx context.Context, ids []int64) error
	Count(ctx context.Context) (int, error)
}

// Uploader drains the durable queue toward the server. There is exactly one
// uploader per companion; Kick coalesces wakeups so concurrent triggers
// never start overlapping drains.
type Uploader struct {
	backlog Backlog
	send    Sender
	online  func() bool

	kick chan struct{}

	mu          sync.Mutex
	fetchWindow int
	backoff     time.Duration
}

func NewUploader(backlog Backlog, send Sender, online func() bool) *Uploader {
	return &Uploader{
		backlog:     backlog,
		send:        send,
		online:      online,
		kick:        make(chan struct{}, 1),
		fetchWindow: DefaultFetchWindow,
		backoff:     DefaultRetryBackoff,
	}
}

// SetPacing adjusts the drain window and retry pause. Safe to call while
// running; the next pass picks the new values up.
func (u *Uploader) SetPacing(fetchWindow int, backoff time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fetchWindow > 0 {
		u.fetchWindow = fetchWindow
	}
	if backoff > 0 {
		u.backoff = backoff
	}
}

// Kick requests a drain. Non-blocking; a pending kick absorbs new ones.
func (u *Uploader) Kick() {
	select {
	case u.kick <- struct{}{}:
	default:
	}
}

func (u *Uploader) pacing() (int, time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fetchWindow, u.backoff
}

// Run drains on every kick until the queue is empty, pausing between passes
// when the server is unreachable.
func (u *Uploader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.kick:
		}

		for {
			if !u.online() {
				// Reconnect kicks again; no point spinning offline.
				break
			}

			emptied, unavailable := u.drainPass(ctx)
			u.updateDepth(ctx)
			if emptied {
				break
			}
			if unavailable {
				metrics.UploadPasses.WithLabelValues("unavailable").Inc()
				_, backoff := u.pacing()
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			metrics.UploadPasses.WithLabelValues("progress").Inc()
		}
	}
}

// drainPass reads one window of rows and uploads them grouped by session,
// preserving oldest-first order within and across groups. Returns emptied
// when the queue had no rows, and unavailable when the server could not be
// reached; the pass stops at the first unreachable group so nothing is
// skipped ahead of older rows.
func (u *Uploader) drainPass(ctx context.Context) (emptied, unavailable bool) {
	window, _ := u.pacing()
	rows, err := u.backlog.OldestPending(ctx, window)
	if err != nil {
		slog.Error("uploader: queue read failed", "err", err)
		return true, false
	}
	if len(rows) == 0 {
		return true, false
	}

	for _, g := range groupBySession(rows) {
		samples, ids, corrupt := mergeGroup(g)

		if len(corrupt) > 0 {
			if err := u.backlog.Delete(ctx, corrupt); err != nil {
				slog.Error("uploader: corrupt row cleanup failed", "err", err)
			} else {
				slog.Warn("uploader: dropped corrupt queued rows",
					"session_id", g.sessionID, "rows", len(corrupt))
			}
		}
		if len(samples) == 0 {
			continue
		}

		err := u.send.UploadBatch(ctx, g.subjectID, g.sessionID, samples)
		switch {
		case err == nil:
			if delErr := u.backlog.Delete(ctx, ids); delErr != nil {
				// Rows stay and will be re-sent; duplicates are the
				// server's dedup problem, losing data is not.
				slog.Error("uploader: delete after upload failed", "err", delErr)
			}
			metrics.BatchesUploaded.Add(float64(len(ids)))
			slog.Info("uploader: backlog group delivered",
				"session_id", g.sessionID, "rows", len(ids), "samples", len(samples))

		case gateway.IsRejected(err):
			if delErr := u.backlog.Delete(ctx, ids); delErr != nil {
				slog.Error("uploader: delete after rejection failed", "err", delErr)
			}
			metrics.BatchesRejected.Add(float64(len(ids)))
			slog.Warn("uploader: backlog group rejected, discarded",
				"session_id", g.sessionID, "rows", len(ids), "err", err)

		default:
			slog.Warn("uploader: server unreachable, pass aborted",
				"session_id", g.sessionID, "err", err)
			return false, true
		}
	}

	return false, false
}

func (u *Uploader) updateDepth(ctx context.Context) {
	n, err := u.backlog.Count(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(n))
}

type sessionGroup struct {
	sessionID int64
	subjectID string
	rows      []queue.PendingBatch
}

// groupBySession partitions rows by session id, keeping groups in the order
// their oldest row appears and rows in queue order within each group.
func groupBySession(rows []queue.PendingBatch) []sessionGroup {
	idx := make(map[int64]int)
	var groups []sessionGroup
	for _, r := range rows {
		i, ok := idx[r.SessionID]
		if !ok {
			i = len(groups)
			idx[r.SessionID] = i
			groups = append(groups, sessionGroup{sessionID: r.SessionID, subjectID: r.SubjectID})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	return groups
}

// mergeGroup concatenates a group's payloads into one sample slice.
// Undecodable rows are reported separately for deletion.
func mergeGroup(g sessionGroup) (samples []wire.Sample, ids, corrupt []int64) {
	for _, r := range g.rows {
		decoded, err := wire.DecodeSamples(r.Payload)
		if err != nil {
			corrupt = append(corrupt, r.ID)
			continue
		}
		samples = append(samples, decoded...)
		ids = append(ids, r.ID)
	}
	return samples, ids, corrupt
}
