package sampler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// Replay plays back a recorded session from a CSV file with
// "timestamp,x,y,z" rows. Recorded timestamps are shifted so the first
// sample lands on the current wall clock, preserving the original spacing.
type Replay struct {
	path string
	tick time.Duration
	sink Sink
	now  func() time.Time
}

// NewReplay creates a replay source. tick is the delay between pushed
// samples (the recording's own cadence is not used for pacing).
func NewReplay(path string, tick time.Duration, sink Sink) *Replay {
	return &Replay{path: path, tick: tick, sink: sink, now: time.Now}
}

// Run plays the file once and returns. Malformed rows are skipped with a
// warning; a file with no valid rows is an error.
func (r *Replay) Run(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	t := time.NewTicker(r.tick)
	defer t.Stop()

	var offset int64
	haveOffset := false
	pushed := 0

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		s, err := parseReplayRow(line)
		if err != nil {
			// The first row is commonly a header; anything else is noise.
			if pushed > 0 || haveOffset {
				slog.Warn("replay: skipping malformed row", "err", err)
			}
			continue
		}

		if !haveOffset {
			offset = r.now().UnixMilli() - s.Timestamp
			haveOffset = true
		}
		s.Timestamp += offset

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		r.sink.Ingest(s)
		pushed++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}
	if pushed == 0 {
		return fmt.Errorf("replay file %s contained no valid rows", r.path)
	}

	slog.Info("replay: playback complete", "samples", pushed, "file", r.path)
	return nil
}

func parseReplayRow(line string) (wire.Sample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return wire.Sample{}, fmt.Errorf("want 4 fields, got %d", len(parts))
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return wire.Sample{}, fmt.Errorf("timestamp: %w", err)
	}

	var axes [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return wire.Sample{}, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = v
	}

	return wire.Sample{Timestamp: ts, X: axes[0], Y: axes[1], Z: axes[2]}, nil
}
