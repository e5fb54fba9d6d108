package battery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

type fakeSender struct {
	mu    sync.Mutex
	paths []string
	data  [][]byte
}

func (f *fakeSender) Send(path string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.data = append(f.data, payload)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func TestReporter_SendsOnBatteryPath(t *testing.T) {
	sender := &fakeSender{}
	r := New(func() int { return 81 }, sender, 0)
	r.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if sender.count() < 2 {
		t.Fatalf("sends: got %d, want at least 2", sender.count())
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if !wire.IsBatteryPath(sender.paths[0]) {
		t.Errorf("path: got %q, want battery path", sender.paths[0])
	}
	if sender.paths[0] == sender.paths[1] {
		t.Errorf("repeated sends share path %q; must be distinct delivery units", sender.paths[0])
	}
	level, err := wire.DecodeBattery(sender.data[0])
	if err != nil {
		t.Fatalf("DecodeBattery: %v", err)
	}
	if level != 81 {
		t.Errorf("level: got %d, want 81", level)
	}
}

func TestReporter_SkipsUnreadableLevel(t *testing.T) {
	sender := &fakeSender{}
	r := New(func() int { return -1 }, sender, 0)
	r.interval = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if sender.count() != 0 {
		t.Errorf("sends: got %d, want 0 for unreadable level", sender.count())
	}
}

func TestSimulated_Drains(t *testing.T) {
	level := Simulated(90, 10)
	if got := level(); got != 90 {
		t.Errorf("initial level: got %d, want 90", got)
	}
}
