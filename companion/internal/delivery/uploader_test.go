package delivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/gateway"
	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/queue"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// memBacklog is an in-memory stand-in for the sqlite queue.
type memBacklog struct {
	mu     sync.Mutex
	nextID int64
	rows   []queue.PendingBatch
}

func (m *memBacklog) add(t *testing.T, sessionID int64, subjectID string, samples []wire.Sample) int64 {
	t.Helper()
	payload, err := wire.EncodeSamples(samples)
	if err != nil {
		t.Fatal(err)
	}
	return m.addRaw(sessionID, subjectID, payload)
}

func (m *memBacklog) addRaw(sessionID int64, subjectID string, payload []byte) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows = append(m.rows, queue.PendingBatch{
		ID:        m.nextID,
		SessionID: sessionID,
		SubjectID: subjectID,
		Payload:   payload,
	})
	return m.nextID
}

func (m *memBacklog) OldestPending(_ context.Context, limit int) ([]queue.PendingBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := limit
	if n > len(m.rows) {
		n = len(m.rows)
	}
	out := make([]queue.PendingBatch, n)
	copy(out, m.rows[:n])
	return out, nil
}

func (m *memBacklog) Delete(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *memBacklog) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memBacklog) depth() int {
	n, _ := m.Count(context.Background())
	return n
}

func startUploader(t *testing.T, backlog Backlog, sender Sender, online func() bool) *Uploader {
	t.Helper()
	u := NewUploader(backlog, sender, online)
	u.SetPacing(DefaultFetchWindow, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go u.Run(ctx)
	return u
}

func alwaysOnline() bool { return true }

func TestDrainMergesSessionRows(t *testing.T) {
	backlog := &memBacklog{}
	backlog.add(t, 42, "p1", makeSamples(25, 0))
	backlog.add(t, 42, "p1", makeSamples(25, 1000))
	backlog.add(t, 42, "p1", makeSamples(25, 2000))

	sender := &scriptedSender{}
	u := startUploader(t, backlog, sender, alwaysOnline)
	u.Kick()

	waitFor(t, func() bool { return backlog.depth() == 0 })
	if n := sender.callCount(); n != 1 {
		t.Fatalf("upload calls = %d, want 1 merged call", n)
	}
	call := sender.call(0)
	if call.sessionID != 42 || len(call.samples) != 75 {
		t.Fatalf("merged call = session %d, %d samples", call.sessionID, len(call.samples))
	}
	for i := 1; i < len(call.samples); i++ {
		if call.samples[i].Timestamp < call.samples[i-1].Timestamp {
			t.Fatal("merged samples out of order")
		}
	}
}

func TestRejectedGroupDeletedOthersDelivered(t *testing.T) {
	backlog := &memBacklog{}
	backlog.add(t, 41, "p1", makeSamples(25, 0))
	backlog.add(t, 42, "p1", makeSamples(25, 1000))

	// First group (session 41) is rejected, second succeeds.
	sender := &scriptedSender{script: []error{&gateway.RejectedError{Status: http.StatusNotFound}}}
	u := startUploader(t, backlog, sender, alwaysOnline)
	u.Kick()

	waitFor(t, func() bool { return backlog.depth() == 0 })
	if n := sender.callCount(); n != 2 {
		t.Fatalf("upload calls = %d, want 2", n)
	}
	if sender.call(0).sessionID != 41 || sender.call(1).sessionID != 42 {
		t.Errorf("call order = %d, %d", sender.call(0).sessionID, sender.call(1).sessionID)
	}
}

func TestUnavailableAbortsPassThenRecovers(t *testing.T) {
	backlog := &memBacklog{}
	backlog.add(t, 41, "p1", makeSamples(25, 0))
	backlog.add(t, 42, "p1", makeSamples(25, 1000))

	// First attempt fails transiently; everything must survive for the
	// next pass, including the younger session's rows.
	sender := &scriptedSender{script: []error{fmt.Errorf("post: %w", gateway.ErrUnavailable)}}
	u := startUploader(t, backlog, sender, alwaysOnline)
	u.Kick()

	waitFor(t, func() bool { return backlog.depth() == 0 })

	// Pass 1: one failed call. Pass 2: both groups delivered.
	if n := sender.callCount(); n != 3 {
		t.Fatalf("upload calls = %d, want 3", n)
	}
	if sender.call(1).sessionID != 41 {
		t.Errorf("retry must start from the oldest group, got session %d", sender.call(1).sessionID)
	}
}

func TestOfflineWaitsForKick(t *testing.T) {
	backlog := &memBacklog{}
	backlog.add(t, 42, "p1", makeSamples(25, 0))

	var mu sync.Mutex
	online := false
	sender := &scriptedSender{}
	u := startUploader(t, backlog, sender, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return online
	})

	u.Kick()
	time.Sleep(30 * time.Millisecond)
	if sender.callCount() != 0 {
		t.Fatal("uploads attempted while offline")
	}

	mu.Lock()
	online = true
	mu.Unlock()
	u.Kick()
	waitFor(t, func() bool { return backlog.depth() == 0 })
}

func TestCorruptRowsDroppedHealthyDelivered(t *testing.T) {
	backlog := &memBacklog{}
	backlog.addRaw(42, "p1", []byte("{not json"))
	backlog.add(t, 42, "p1", makeSamples(25, 0))

	sender := &scriptedSender{}
	u := startUploader(t, backlog, sender, alwaysOnline)
	u.Kick()

	waitFor(t, func() bool { return backlog.depth() == 0 })
	if n := sender.callCount(); n != 1 {
		t.Fatalf("upload calls = %d, want 1", n)
	}
	if len(sender.call(0).samples) != 25 {
		t.Errorf("delivered %d samples, want the 25 healthy ones", len(sender.call(0).samples))
	}
}

func TestKickCoalesces(t *testing.T) {
	u := NewUploader(&memBacklog{}, &scriptedSender{}, alwaysOnline)
	for i := 0; i < 10; i++ {
		u.Kick() // must never block even without a running drain loop
	}
	if len(u.kick) != 1 {
		t.Fatalf("pending kicks = %d, want 1", len(u.kick))
	}
}

func TestDrainRespectsFetchWindow(t *testing.T) {
	backlog := &memBacklog{}
	for i := 0; i < 45; i++ {
		backlog.add(t, 42, "p1", makeSamples(25, int64(i*1000)))
	}

	sender := &scriptedSender{}
	u := startUploader(t, backlog, sender, alwaysOnline)
	u.SetPacing(20, 10*time.Millisecond)
	u.Kick()

	waitFor(t, func() bool { return backlog.depth() == 0 })
	// 45 rows at a window of 20 is three passes: 20+20+5 rows merged.
	if n := sender.callCount(); n != 3 {
		t.Fatalf("upload calls = %d, want 3", n)
	}
	if got := len(sender.call(0).samples); got != 20*25 {
		t.Errorf("first pass samples = %d, want %d", got, 20*25)
	}
	if got := len(sender.call(2).samples); got != 5*25 {
		t.Errorf("last pass samples = %d, want %d", got, 5*25)
	}
}
