// Package receiver routes frames arriving from the wearable link to the
// chart, the delivery pipeline and the session controller.
package receiver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/companion/internal/metrics"
	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// streamIdleAfter is how long without sensor data before the stream is
// considered paused for status reporting.
const streamIdleAfter = 3 * time.Second

// Chart is the live display buffer fed by incoming samples.
type Chart interface {
	Push(samples ...wire.Sample)
}

// Dispatcher is the delivery side; it must not block.
type Dispatcher interface {
	Dispatch(samples []wire.Sample)
}

// DeviceStatus receives the wearable's identity and battery updates.
type DeviceStatus interface {
	SetBattery(level int)
	SetDeviceID(id string)
}

// Receiver demultiplexes wearable frames by path. Frames arrive on the
// transport's read goroutine, so everything here stays non-blocking.
type Receiver struct {
	chart    Chart
	delivery Dispatcher
	status   DeviceStatus

	mu        sync.Mutex
	streaming bool
	idleTimer *time.Timer
}

func New(chart Chart, delivery Dispatcher, status DeviceStatus) *Receiver {
	return &Receiver{chart: chart, delivery: delivery, status: status}
}

// HandleFrame is the transport handler for the wearable link.
func (r *Receiver) HandleFrame(path string, payload []byte) {
	switch {
	case wire.IsSensorDataPath(path):
		r.handleSamples(payload)
	case wire.IsBatteryPath(path):
		r.handleBattery(payload)
	case wire.IsDevicePath(path):
		r.handleDevice(payload)
	default:
		slog.Debug("receiver: ignoring unknown path", "path", path)
	}
}

func (r *Receiver) handleSamples(payload []byte) {
	samples, err := wire.DecodeSamples(payload)
	if err != nil {
		metrics.BatchesMalformed.Inc()
		slog.Warn("receiver: malformed sensor batch discarded", "err", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	metrics.BatchesReceived.Inc()
	metrics.SamplesReceived.Add(float64(len(samples)))

	r.chart.Push(samples...)
	r.delivery.Dispatch(samples)
	r.markStreaming()
}

func (r *Receiver) handleBattery(payload []byte) {
	level, err := wire.DecodeBattery(payload)
	if err != nil {
		slog.Warn("receiver: malformed battery reading discarded", "err", err)
		return
	}
	metrics.BatteryLevel.Set(float64(level))
	r.status.SetBattery(level)
}

func (r *Receiver) handleDevice(payload []byte) {
	id, err := wire.DecodeDevice(payload)
	if err != nil {
		slog.Warn("receiver: malformed device announcement discarded", "err", err)
		return
	}
	r.status.SetDeviceID(id)
}

func (r *Receiver) markStreaming() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streaming = true
	if r.idleTimer == nil {
		r.idleTimer = time.AfterFunc(streamIdleAfter, r.markIdle)
	} else {
		r.idleTimer.Reset(streamIdleAfter)
	}
}

func (r *Receiver) markIdle() {
	r.mu.Lock()
	r.streaming = false
	r.mu.Unlock()
	slog.Info("receiver: sensor stream paused")
}

// Streaming reports whether sensor data arrived within the last few
// seconds. Backs the status endpoint's "receiving data" indicator.
func (r *Receiver) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}
