// Package metrics holds the Prometheus collectors shared by the bridge, the
// download orchestrator, and the stream readers. Collectors update whether or
// not they are registered; Register exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudplay"

var (
	BridgeCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_calls_total",
		Help:      "Remote calls by function type and outcome.",
	}, []string{"function", "outcome"})

	BridgeCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bridge_call_duration_seconds",
		Help:      "Time from sending a remote call to its resolution.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 1, 3, 10, 30},
	}, []string{"function"})

	BridgePendingCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_pending_calls",
		Help:      "Remote calls awaiting a response.",
	})

	BridgeDroppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_dropped_events_total",
		Help:      "Events discarded because a subscriber buffer was full.",
	})

	SessionPhaseChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_phase_changes_total",
		Help:      "Authorization phase transitions by new phase.",
	}, []string{"phase"})

	DownloadPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_status_polls_total",
		Help:      "File status queries issued while waiting for a local path.",
	})

	DownloadWaitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_waits_total",
		Help:      "Path waits by outcome (located, immediate, not_located, cancelled).",
	}, []string{"outcome"})

	StreamOpensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_opens_total",
		Help:      "Stream opens by source kind and outcome.",
	}, []string{"source", "outcome"})

	StreamActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_active",
		Help:      "Open stream sessions.",
	})

	StreamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_bytes_total",
		Help:      "Bytes delivered to readers.",
	})

	StreamStallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_stalls_total",
		Help:      "Reads that gave up waiting for a growing file and reported end of stream.",
	})

	CatalogSongs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_songs",
		Help:      "Songs stored after the last successful sync.",
	})
)

// Register adds every collector to reg. Panics on duplicate registration.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		BridgeCallsTotal,
		BridgeCallDuration,
		BridgePendingCalls,
		BridgeDroppedEvents,
		SessionPhaseChanges,
		DownloadPollsTotal,
		DownloadWaitsTotal,
		StreamOpensTotal,
		StreamActive,
		StreamBytesTotal,
		StreamStallsTotal,
		CatalogSongs,
	)
}
