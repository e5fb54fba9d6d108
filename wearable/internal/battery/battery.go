// Package battery reports the wearable's battery level to the companion as
// an opportunistic telemetry side-channel. Readings are ephemeral: sent at
// most once per interval, never persisted, and lost readings are not
// retried beyond what the transport itself replays.
package battery

import (
	"context"
	"log/slog"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/transport"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// DefaultInterval matches the historical 30s cadence.
const DefaultInterval = 30 * time.Second

// LevelFunc returns the current battery percentage, or a negative value
// when the level cannot be read.
type LevelFunc func() int

// Simulated returns a LevelFunc that drains linearly from start at the
// given percent-per-hour rate. Used when no platform battery source exists.
func Simulated(start int, perHour float64) LevelFunc {
	began := time.Now()
	return func() int {
		drained := perHour * time.Since(began).Hours()
		level := start - int(drained)
		if level < 0 {
			level = 0
		}
		return level
	}
}

// Reporter periodically sends battery readings over the transport.
type Reporter struct {
	level    LevelFunc
	sender   transport.Sender
	interval time.Duration
	seq      uint64
}

// New creates a Reporter. An interval below 1s falls back to DefaultInterval.
func New(level LevelFunc, sender transport.Sender, interval time.Duration) *Reporter {
	if interval < time.Second {
		interval = DefaultInterval
	}
	return &Reporter{level: level, sender: sender, interval: interval}
}

// Run sends one reading per interval until ctx is cancelled. Unreadable
// levels are skipped.
func (r *Reporter) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			level := r.level()
			if level < 0 || level > 100 {
				continue
			}
			payload, err := wire.EncodeBattery(level)
			if err != nil {
				slog.Error("battery: encode failed", "err", err)
				continue
			}
			r.seq++
			if err := r.sender.Send(wire.BatteryPath(r.seq), payload); err != nil {
				slog.Warn("battery: send failed", "err", err)
			}
		}
	}
}
