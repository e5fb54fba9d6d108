package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/transport"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
	"github.com/Gasparello10/MonitorParkinsonApp/wearable/internal/batcher"
	"github.com/Gasparello10/MonitorParkinsonApp/wearable/internal/battery"
	"github.com/Gasparello10/MonitorParkinsonApp/wearable/internal/config"
	"github.com/Gasparello10/MonitorParkinsonApp/wearable/internal/sampler"
)

func main() {
	configPath := flag.String("config", "wearable.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("wearable starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"device_id", cfg.Wearable.DeviceID,
		"companion_url", cfg.Wearable.CompanionURL,
		"mode", cfg.Wearable.Mode,
		"batch_size", cfg.Wearable.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	col := &collector{cfg: cfg.Wearable}

	client := transport.NewClient(cfg.Wearable.CompanionURL, func(path string, payload []byte) {
		if path != wire.ControlPath {
			slog.Warn("ignoring frame on unknown path", "path", path)
			return
		}
		switch string(payload) {
		case wire.CommandStart:
			col.start(ctx)
		case wire.CommandStop:
			col.stop()
		default:
			slog.Warn("ignoring unknown control command", "command", string(payload))
		}
	})
	go client.Run(ctx)

	// Announce identity once; the outbox holds the frame until the link is up.
	hello, err := wire.EncodeDevice(cfg.Wearable.DeviceID)
	if err != nil {
		slog.Error("encode device announcement failed", "err", err)
		os.Exit(1)
	}
	if err := client.Send(wire.DevicePath, hello); err != nil {
		slog.Warn("device announcement not queued", "err", err)
	}

	// Batches go out tagged with a per-send sequence path so the transport
	// never coalesces equal payloads.
	col.batch = batcher.New(cfg.Wearable.BatchSize, func(seq uint64, samples []wire.Sample) {
		payload, err := wire.EncodeSamples(samples)
		if err != nil {
			slog.Error("encode batch failed", "err", err, "samples", len(samples))
			return
		}
		if err := client.Send(wire.SensorDataPath(seq), payload); err != nil {
			slog.Warn("batch send failed", "seq", seq, "err", err)
		}
	})

	reporter := battery.New(
		battery.Simulated(100, 4),
		client,
		cfg.Wearable.BatteryInterval,
	)
	go reporter.Run(ctx)

	<-ctx.Done()
	col.stop()
	slog.Info("wearable stopped")
}

// collector owns the sampling lifecycle: the companion's start/stop control
// commands toggle it. Stopping flushes the final partial batch so no sample
// is lost at the boundary.
type collector struct {
	cfg   config.WearableConfig
	batch *batcher.Batcher

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *collector) start(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		slog.Info("start command while already sampling — ignored")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	slog.Info("sampling started", "mode", c.cfg.Mode)

	read := sampler.Synthetic(5.0, 1.2) // parkinsonian tremor band ~4-6 Hz
	interval := time.Second / time.Duration(c.cfg.SampleRateHz)

	switch c.cfg.Mode {
	case config.ModeDeviceBatched:
		s := sampler.NewDeviceBatched(interval, c.cfg.MaxReportLatency, read, c.batch)
		go s.Run(ctx)
	case config.ModeReplay:
		r := sampler.NewReplay(c.cfg.ReplayFile, c.cfg.ReplayTick, c.batch)
		go func() {
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("replay failed", "err", err)
			}
		}()
	default:
		s := sampler.NewContinuous(interval, read, c.batch)
		go s.Run(ctx)
	}
}

func (c *collector) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.batch.Flush()
	slog.Info("sampling stopped, final batch flushed")
}
