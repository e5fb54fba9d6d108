package sampler

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// Sink consumes samples. Ingest must return quickly; it is called on the
// sampling goroutine.
type Sink interface {
	Ingest(wire.Sample)
}

// ReadFunc returns one accelerometer reading in m/s² per axis.
type ReadFunc func() (x, y, z float64)

// Synthetic returns a ReadFunc producing a tremor-like signal: a sine at
// freq Hz with amplitude amp on top of gravity, plus small noise. Used when
// no physical sensor is attached.
func Synthetic(freq, amp float64) ReadFunc {
	start := time.Now()
	return func() (float64, float64, float64) {
		t := time.Since(start).Seconds()
		osc := amp * math.Sin(2*math.Pi*freq*t)
		noise := func() float64 { return (rand.Float64() - 0.5) * 0.05 } //nolint:gosec // not crypto
		return osc + noise(), -9.81 + osc*0.3 + noise(), noise()
	}
}

// Continuous pushes one sample per interval.
type Continuous struct {
	interval time.Duration
	read     ReadFunc
	sink     Sink
	now      func() time.Time // injectable for tests
}

// NewContinuous creates a continuous sampler at the given interval
// (e.g. 20ms for 50 Hz).
func NewContinuous(interval time.Duration, read ReadFunc, sink Sink) *Continuous {
	return &Continuous{interval: interval, read: read, sink: sink, now: time.Now}
}

// Run samples until ctx is cancelled.
func (c *Continuous) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			x, y, z := c.read()
			c.sink.Ingest(wire.Sample{
				Timestamp: c.now().UnixMilli(),
				X:         x, Y: y, Z: z,
			})
		}
	}
}

// DeviceBatched emulates hardware-assisted sensor batching: readings are
// taken every interval but held driver-side and delivered to the sink in one
// burst at most every maxLatency. Timestamps reflect collection time, not
// delivery time, so downstream ordering by timestamp stays correct.
type DeviceBatched struct {
	interval   time.Duration
	maxLatency time.Duration
	read       ReadFunc
	sink       Sink
	now        func() time.Time
}

// NewDeviceBatched creates a device-batched sampler. The historical device
// used a 40ms period with a 5s maximum report latency.
func NewDeviceBatched(interval, maxLatency time.Duration, read ReadFunc, sink Sink) *DeviceBatched {
	return &DeviceBatched{
		interval:   interval,
		maxLatency: maxLatency,
		read:       read,
		sink:       sink,
		now:        time.Now,
	}
}

// Run samples until ctx is cancelled. Any readings still held driver-side
// are delivered before returning.
func (d *DeviceBatched) Run(ctx context.Context) {
	sample := time.NewTicker(d.interval)
	defer sample.Stop()
	report := time.NewTicker(d.maxLatency)
	defer report.Stop()

	var held []wire.Sample
	deliver := func() {
		for _, s := range held {
			d.sink.Ingest(s)
		}
		held = held[:0]
	}

	for {
		select {
		case <-ctx.Done():
			deliver()
			return
		case <-sample.C:
			x, y, z := d.read()
			held = append(held, wire.Sample{
				Timestamp: d.now().UnixMilli(),
				X:         x, Y: y, Z: z,
			})
		case <-report.C:
			deliver()
		}
	}
}
