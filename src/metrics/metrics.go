// Package metrics declares the prometheus collectors of a murmur node.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "murmur"

var (
	// Registry holds every murmur collector. It is served by Handler.
	Registry = prometheus.NewRegistry()

	EventsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_created_total",
			Help:      "Self events created.",
		},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events received from peers, by outcome.",
		},
		[]string{"outcome"},
	)

	StaleEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Self events that became ancient before reaching consensus.",
		},
	)

	OrphanBufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphan_buffer_size",
			Help:      "Events held until their parents arrive.",
		},
	)

	ShadowgraphSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shadowgraph_size",
			Help:      "Non-expired events available for gossip.",
		},
	)

	Syncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Completed syncs, by fallen-behind status.",
		},
		[]string{"status"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of a sync with one peer.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
	)

	HeartbeatRTT = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_rtt_seconds",
			Help:      "Round trip time measured by heartbeats.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"peer"},
	)

	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open peer connections.",
		},
	)

	Disconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Peer connections torn down.",
		},
	)

	ReconnectRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_rejections_total",
			Help:      "Reconnect requests rejected as teacher, by reason.",
		},
		[]string{"reason"},
	)

	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect transfers, by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	FallenBehindReports = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallen_behind_reports",
			Help:      "Peers currently reporting this node behind.",
		},
	)

	PlatformStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "platform_status",
			Help:      "1 for the current platform status, 0 otherwise.",
		},
		[]string{"status"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		EventsCreated,
		EventsReceived,
		StaleEvents,
		OrphanBufferSize,
		ShadowgraphSize,
		Syncs,
		SyncDuration,
		HeartbeatRTT,
		Connections,
		Disconnects,
		ReconnectRejections,
		Reconnects,
		FallenBehindReports,
		PlatformStatus,
		buildInfo,
		uptime,
	)
}

// Handler exposes the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// SetPlatformStatus marks current as the only active status.
func SetPlatformStatus(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		PlatformStatus.WithLabelValues(s).Set(v)
	}
}

// PeerLabel formats a node id as a label value.
func PeerLabel(id uint64) string {
	return strconv.FormatUint(id, 10)
}
