package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/gateway"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

type uploadCall struct {
	subjectID string
	sessionID int64
	samples   []wire.Sample
}

// scriptedSender returns errors from its script in order, then nil.
type scriptedSender struct {
	mu     sync.Mutex
	script []error
	calls  []uploadCall
}

func (s *scriptedSender) UploadBatch(_ context.Context, subjectID string, sessionID int64, samples []wire.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, uploadCall{subjectID, sessionID, samples})
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedSender) call(i int) uploadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

type fakeInserter struct {
	mu   sync.Mutex
	rows []uploadCall // payload re-decoded for assertions
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, sessionID int64, subjectID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	samples, err := wire.DecodeSamples(payload)
	if err != nil {
		return err
	}
	f.rows = append(f.rows, uploadCall{subjectID, sessionID, samples})
	return nil
}

func (f *fakeInserter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (f *fakeKicker) Kick() {
	f.mu.Lock()
	f.kicks++
	f.mu.Unlock()
}

func (f *fakeKicker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

func makeSamples(n int, base int64) []wire.Sample {
	out := make([]wire.Sample, n)
	for i := range out {
		out[i] = wire.Sample{Timestamp: base + int64(i), X: float64(i), Y: 1, Z: 2}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatchIdleDrops(t *testing.T) {
	sender := &scriptedSender{}
	p := NewPipeline(sender, &fakeInserter{}, &fakeKicker{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Dispatch(makeSamples(25, 0))
	time.Sleep(20 * time.Millisecond)
	if n := sender.callCount(); n != 0 {
		t.Fatalf("sends while idle = %d, want 0", n)
	}
}

func TestDispatchBuffersUntilActivate(t *testing.T) {
	sender := &scriptedSender{}
	p := NewPipeline(sender, &fakeInserter{}, &fakeKicker{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	first := makeSamples(25, 0)
	second := makeSamples(25, 100)
	p.Dispatch(first)
	p.Dispatch(second)

	time.Sleep(20 * time.Millisecond)
	if n := sender.callCount(); n != 0 {
		t.Fatalf("sends before activation = %d, want 0", n)
	}

	p.Activate(42)
	waitFor(t, func() bool { return sender.callCount() == 2 })

	c0, c1 := sender.call(0), sender.call(1)
	if c0.sessionID != 42 || c0.subjectID != "p1" {
		t.Errorf("call 0 = %+v", c0)
	}
	if diff := cmp.Diff(first, c0.samples); diff != "" {
		t.Errorf("first batch mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(second, c1.samples); diff != "" {
		t.Errorf("second batch mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectSendFailureQueuesAndKicks(t *testing.T) {
	sender := &scriptedSender{script: []error{fmt.Errorf("post /data: %w", gateway.ErrUnavailable)}}
	backlog := &fakeInserter{}
	kicker := &fakeKicker{}
	p := NewPipeline(sender, backlog, kicker, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	p.Activate(42)
	p.Dispatch(makeSamples(25, 0))

	waitFor(t, func() bool { return backlog.count() == 1 && kicker.count() == 1 })

	row := backlog.rows[0]
	if row.sessionID != 42 || row.subjectID != "p1" || len(row.samples) != 25 {
		t.Errorf("queued row = %+v", row)
	}
}

func TestRejectedBatchDiscarded(t *testing.T) {
	sender := &scriptedSender{script: []error{&gateway.RejectedError{Status: http.StatusNotFound}}}
	backlog := &fakeInserter{}
	kicker := &fakeKicker{}
	p := NewPipeline(sender, backlog, kicker, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	p.Activate(42)
	p.Dispatch(makeSamples(25, 0))

	waitFor(t, func() bool { return sender.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if backlog.count() != 0 {
		t.Error("rejected batch must not be queued")
	}
	if kicker.count() != 0 {
		t.Error("rejected batch must not kick the uploader")
	}
}

func TestInsertFailureLosesBatchQuietly(t *testing.T) {
	sender := &scriptedSender{script: []error{fmt.Errorf("post: %w", gateway.ErrUnavailable)}}
	backlog := &fakeInserter{err: errors.New("disk full")}
	kicker := &fakeKicker{}
	p := NewPipeline(sender, backlog, kicker, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	p.Activate(42)
	p.Dispatch(makeSamples(25, 0))

	waitFor(t, func() bool { return sender.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if kicker.count() != 0 {
		t.Error("failed insert must not kick the uploader")
	}
}

func TestResetDropsStaleWork(t *testing.T) {
	sender := &scriptedSender{}
	p := NewPipeline(sender, &fakeInserter{}, &fakeKicker{}, time.Second)

	p.Begin("p1")
	p.Activate(42)
	p.Dispatch(makeSamples(25, 0))
	p.Reset()

	// Worker starts after Reset; the queued job must be skipped.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	if n := sender.callCount(); n != 0 {
		t.Fatalf("sends after reset = %d, want 0", n)
	}
}

// blockingSender holds an upload until released, then fails it.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSender) UploadBatch(context.Context, string, int64, []wire.Sample) error {
	s.entered <- struct{}{}
	<-s.release
	return fmt.Errorf("post: %w", gateway.ErrUnavailable)
}

func TestStopDuringSendLeavesNoRow(t *testing.T) {
	sender := &blockingSender{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	backlog := &fakeInserter{}
	kicker := &fakeKicker{}
	p := NewPipeline(sender, backlog, kicker, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	p.Activate(42)
	p.Dispatch(makeSamples(25, 0))
	<-sender.entered

	// The session ends while the send is in flight. Its purge has already
	// run by the time the send fails, so no new row may appear.
	p.Reset()
	close(sender.release)

	time.Sleep(30 * time.Millisecond)
	if backlog.count() != 0 {
		t.Error("batch queued after the session ended")
	}
	if kicker.count() != 0 {
		t.Error("uploader kicked after the session ended")
	}
}

func TestPerSessionOrderPreserved(t *testing.T) {
	sender := &scriptedSender{}
	p := NewPipeline(sender, &fakeInserter{}, &fakeKicker{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Begin("p1")
	p.Activate(42)
	for i := 0; i < 5; i++ {
		p.Dispatch(makeSamples(25, int64(i*1000)))
	}

	waitFor(t, func() bool { return sender.callCount() == 5 })
	for i := 0; i < 5; i++ {
		if ts := sender.call(i).samples[0].Timestamp; ts != int64(i*1000) {
			t.Errorf("call %d first timestamp = %d, want %d", i, ts, i*1000)
		}
	}
}
