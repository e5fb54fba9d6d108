// Package metrics exposes the companion's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Ingest metrics
	BatchesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_received_total",
			Help: "Sensor batches received from the wearable",
		},
	)

	SamplesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_samples_received_total",
			Help: "Individual sensor samples received from the wearable",
		},
	)

	BatchesMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_malformed_total",
			Help: "Sensor batches discarded because their payload did not decode",
		},
	)

	BatchesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_batches_dropped_total",
			Help: "Sensor batches dropped before delivery",
		},
		[]string{"reason"},
	)

	// Delivery metrics
	BatchesSentDirect = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_sent_direct_total",
			Help: "Batches delivered to the server on the first attempt",
		},
	)

	BatchesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_queued_total",
			Help: "Batches written to the durable queue after a failed direct send",
		},
	)

	BatchesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_uploaded_total",
			Help: "Queued batches delivered by the retry uploader",
		},
	)

	BatchesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "companion_batches_rejected_total",
			Help: "Queued batches discarded after a permanent server rejection",
		},
	)

	UploadPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_upload_passes_total",
			Help: "Retry uploader drain passes by outcome",
		},
		[]string{"outcome"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_queue_depth",
			Help: "Batches currently pending in the durable queue",
		},
	)

	// Wearable link metrics
	WearableConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_wearable_connected",
			Help: "Whether a wearable link is currently established",
		},
	)

	BatteryLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "companion_wearable_battery_level",
			Help: "Last reported wearable battery level",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BatchesReceived,
		SamplesReceived,
		BatchesMalformed,
		BatchesDropped,
		BatchesSentDirect,
		BatchesQueued,
		BatchesUploaded,
		BatchesRejected,
		UploadPasses,
		QueueDepth,
		WearableConnected,
		BatteryLevel,
	)
}
