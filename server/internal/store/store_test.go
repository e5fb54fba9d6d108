package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

func samples(ts ...int64) []wire.Sample {
	out := make([]wire.Sample, len(ts))
	for i, t := range ts {
		out[i] = wire.Sample{Timestamp: t, X: float64(i)}
	}
	return out
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestStartAndAppend(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")
	if info.ID == 0 || !info.Active {
		t.Fatalf("StartSession: got %+v", info)
	}

	added, err := st.Append(info.ID, samples(1, 2, 3))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if added != 3 {
		t.Errorf("added: got %d, want 3", added)
	}

	got, ok := st.Samples(info.ID)
	if !ok || len(got) != 3 {
		t.Fatalf("Samples: got %d, ok=%v", len(got), ok)
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	st := New(time.Hour)
	if _, err := st.Append(999, samples(1)); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("err: got %v, want ErrUnknownSession", err)
	}
}

func TestAppend_DeduplicatesTimestamps(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")

	st.Append(info.ID, samples(1, 2, 3))

	// A retried upload overlaps the direct send that actually arrived.
	added, err := st.Append(info.ID, samples(2, 3, 4))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if added != 1 {
		t.Errorf("added: got %d, want 1 (only the unseen timestamp)", added)
	}

	got, _ := st.Samples(info.ID)
	if len(got) != 4 {
		t.Errorf("total samples: got %d, want 4", len(got))
	}
}

func TestAppend_AfterStopAccepted(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")
	if err := st.StopSession(info.ID); err != nil {
		t.Fatal(err)
	}

	// Late retried upload for a finished session.
	added, err := st.Append(info.ID, samples(10, 11))
	if err != nil {
		t.Fatalf("Append after stop: %v", err)
	}
	if added != 2 {
		t.Errorf("added: got %d, want 2", added)
	}
}

func TestStartSupersedesActive(t *testing.T) {
	st := New(time.Hour)
	first := st.StartSession("p1")
	second := st.StartSession("p1")

	if id, ok := st.ActiveSession("p1"); !ok || id != second.ID {
		t.Fatalf("active: got %d/%v, want %d", id, ok, second.ID)
	}
	info, _ := st.Session(first.ID)
	if info.Active {
		t.Error("superseded session still active")
	}
}

func TestStopSession(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")

	if err := st.StopSession(info.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if _, ok := st.ActiveSession("p1"); ok {
		t.Error("patient still has an active session after stop")
	}
	// Idempotent.
	if err := st.StopSession(info.ID); err != nil {
		t.Errorf("second StopSession: %v", err)
	}
	if err := st.StopSession(999); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown stop: got %v", err)
	}
}

func TestResume(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")

	// Losing the active pointer simulates nothing here — resume of the
	// already active session must simply succeed.
	if !st.Resume("p1", info.ID) {
		t.Error("resume of active session failed")
	}

	st.StopSession(info.ID)
	if st.Resume("p1", info.ID) {
		t.Error("resume of stopped session succeeded")
	}
	if st.Resume("p1", 999) {
		t.Error("resume of unknown session succeeded")
	}
	if st.Resume("p2", info.ID) {
		t.Error("resume by a different patient succeeded")
	}
}

func TestBattery(t *testing.T) {
	base := time.Now()
	st := New(time.Hour)
	st.now = fixedClock(base)

	st.SetBattery("p1", 80)
	b, ok := st.Battery("p1")
	if !ok || b.Level != 80 || !b.UpdatedAt.Equal(base) {
		t.Fatalf("Battery: got %+v, ok=%v", b, ok)
	}
	if _, ok := st.Battery("p2"); ok {
		t.Error("battery for unknown patient")
	}
}

func TestEvict_RemovesExpiredStopped(t *testing.T) {
	base := time.Now()
	st := New(time.Hour)

	st.now = fixedClock(base.Add(-2 * time.Hour))
	old := st.StartSession("p1")
	st.StopSession(old.ID)

	st.now = fixedClock(base)
	live := st.StartSession("p2")

	removed := st.Evict(base)
	if removed != 1 {
		t.Errorf("Evict: removed %d, want 1", removed)
	}
	if _, ok := st.Session(old.ID); ok {
		t.Error("expired session survived eviction")
	}
	if _, ok := st.Session(live.ID); !ok {
		t.Error("live session evicted")
	}
}

func TestEvict_KeepsActive(t *testing.T) {
	base := time.Now()
	st := New(time.Hour)

	st.now = fixedClock(base.Add(-3 * time.Hour))
	info := st.StartSession("p1")

	if removed := st.Evict(base); removed != 0 {
		t.Errorf("Evict removed %d active sessions", removed)
	}
	if _, ok := st.Session(info.ID); !ok {
		t.Error("active session evicted")
	}
}

func TestConcurrentAppends(t *testing.T) {
	st := New(time.Hour)
	info := st.StartSession("p1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			st.Append(info.ID, samples(int64(n)))
		}(i)
		go func() {
			defer wg.Done()
			st.Sessions()
		}()
	}
	wg.Wait()

	got, _ := st.Samples(info.ID)
	if len(got) != 50 {
		t.Errorf("samples: got %d, want 50", len(got))
	}
}
