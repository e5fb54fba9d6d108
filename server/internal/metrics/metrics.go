// Package metrics holds the server's Prometheus collectors. Collectors are
// registered with the default registry at init time and exposed by the
// /metrics endpoint in cmd/server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SamplesIngested counts samples accepted into a session log.
	SamplesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tremor_server",
		Name:      "samples_ingested_total",
		Help:      "Samples accepted into session logs.",
	})

	// SamplesDuplicate counts samples discarded by timestamp dedup. Retried
	// uploads that land twice show up here, not as errors.
	SamplesDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tremor_server",
		Name:      "samples_duplicate_total",
		Help:      "Samples discarded as duplicates of already stored ones.",
	})

	// UploadsRejected counts POST /data requests refused with 404 for an
	// unknown session.
	UploadsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tremor_server",
		Name:      "uploads_rejected_total",
		Help:      "Data uploads rejected for an unknown session.",
	})

	// SessionsStarted counts sessions created via the API.
	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tremor_server",
		Name:      "sessions_started_total",
		Help:      "Sessions started.",
	})

	// SocketClients tracks currently connected event channel clients.
	SocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tremor_server",
		Name:      "socket_clients",
		Help:      "Currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		SamplesIngested,
		SamplesDuplicate,
		UploadsRejected,
		SessionsStarted,
		SocketClients,
	)
}
