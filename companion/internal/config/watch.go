package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the companion config whenever the file at path is rewritten.
// Only the uploader pacing keys (delivery.fetch_window, delivery.retry_backoff)
// take effect at runtime; onPacing receives the new config when they changed.
// Edits to anything else are logged as needing a restart: addresses, URLs and
// the queue path bind at startup. Runs until ctx is cancelled.
//
// A rewrite that fails to parse or validate keeps the running config.
func Watch(ctx context.Context, path string, current *Config, onPacing func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for pacing changes", "path", path,
		"fetch_window", current.Companion.Delivery.FetchWindow,
		"retry_backoff", current.Companion.Delivery.RetryBackoff)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Plain writes arrive as Write; editors that save atomically
			// rename a temp file into place, which arrives as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// An atomic save replaced the inode; watch the new one.
			_ = watcher.Add(path)

			next, err := Load(path)
			if err != nil {
				slog.Error("config: rewrite rejected, keeping running config",
					"path", path, "err", err)
				continue
			}

			if keys := restartKeys(current, next); len(keys) > 0 {
				slog.Warn("config: edited keys take effect on restart", "keys", keys)
			}
			if pacingChanged(current, next) {
				slog.Info("config: uploader pacing updated",
					"fetch_window", next.Companion.Delivery.FetchWindow,
					"retry_backoff", next.Companion.Delivery.RetryBackoff)
				onPacing(next)
			}
			current = next

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// pacingChanged reports whether a rewrite touched the hot-applied uploader
// pacing keys.
func pacingChanged(prev, next *Config) bool {
	p, n := prev.Companion.Delivery, next.Companion.Delivery
	return p.FetchWindow != n.FetchWindow || p.RetryBackoff != n.RetryBackoff
}

// restartKeys lists edited keys that only bind at startup.
func restartKeys(prev, next *Config) []string {
	p, n := prev.Companion, next.Companion
	var keys []string
	if p.ListenAddr != n.ListenAddr {
		keys = append(keys, "listen_addr")
	}
	if p.ServerURL != n.ServerURL {
		keys = append(keys, "server_url")
	}
	if p.ServerSocketURL != n.ServerSocketURL {
		keys = append(keys, "server_socket_url")
	}
	if p.DebugAddr != n.DebugAddr {
		keys = append(keys, "debug_addr")
	}
	if p.QueuePath != n.QueuePath {
		keys = append(keys, "queue_path")
	}
	if p.ChartCapacity != n.ChartCapacity {
		keys = append(keys, "chart_capacity")
	}
	if p.Delivery.DirectTimeout != n.Delivery.DirectTimeout {
		keys = append(keys, "delivery.direct_timeout")
	}
	if p.Auth != n.Auth {
		keys = append(keys, "auth")
	}
	return keys
}
