package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pacingFixture() (*Config, *Config) {
	prev := defaults()
	prev.Companion.ServerURL = "http://monitor.example.org:5000"
	next := defaults()
	next.Companion.ServerURL = "http://monitor.example.org:5000"
	return prev, next
}

func TestPacingChanged(t *testing.T) {
	prev, next := pacingFixture()
	if pacingChanged(prev, next) {
		t.Error("identical configs reported as changed")
	}

	next.Companion.Delivery.FetchWindow = 50
	if !pacingChanged(prev, next) {
		t.Error("fetch_window change not detected")
	}

	_, next = pacingFixture()
	next.Companion.Delivery.RetryBackoff = time.Minute
	if !pacingChanged(prev, next) {
		t.Error("retry_backoff change not detected")
	}

	// direct_timeout binds at client construction, not a pacing key.
	_, next = pacingFixture()
	next.Companion.Delivery.DirectTimeout = time.Minute
	if pacingChanged(prev, next) {
		t.Error("direct_timeout must not count as a pacing change")
	}
}

func TestRestartKeys(t *testing.T) {
	prev, next := pacingFixture()
	if keys := restartKeys(prev, next); len(keys) != 0 {
		t.Errorf("keys = %v, want none for identical configs", keys)
	}

	next.Companion.ListenAddr = ":9999"
	next.Companion.QueuePath = "/tmp/other.db"
	next.Companion.Delivery.DirectTimeout = time.Minute
	next.Companion.Delivery.FetchWindow = 50 // pacing, not a restart key

	keys := restartKeys(prev, next)
	want := map[string]bool{
		"listen_addr":             true,
		"queue_path":              true,
		"delivery.direct_timeout": true,
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected restart key %q", k)
		}
	}
}

func TestWatchAppliesPacingRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "companion.yaml")
	write := func(fetchWindow string) {
		t.Helper()
		yaml := `
companion:
  server_url: "http://monitor.example.org:5000"
  delivery:
    fetch_window: ` + fetchWindow + "\n"
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("20")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan int, 4)
	go func() {
		err := Watch(ctx, path, cfg, func(next *Config) {
			applied <- next.Companion.Delivery.FetchWindow
		})
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// Give the watcher a moment to arm before rewriting.
	time.Sleep(50 * time.Millisecond)
	write("75")

	select {
	case got := <-applied:
		if got != 75 {
			t.Errorf("fetch_window = %d, want 75", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pacing rewrite never applied")
	}
}
