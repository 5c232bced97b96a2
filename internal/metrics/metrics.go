// Package metrics holds the Prometheus instruments for parse runs and the
// view hub. They register on the default registry and are served by the hub
// at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinesParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stolog_lines_parsed_total",
			Help: "Combat log lines parsed into events",
		},
	)

	LinesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stolog_lines_failed_total",
			Help: "Combat log lines that could not be parsed",
		},
	)

	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stolog_files_total",
			Help: "Combat log files seen by parse runs",
		},
		[]string{"result"}, // "parsed", "too_old", "unreadable"
	)

	CombatsBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stolog_combats_built_total",
			Help: "Combats produced by parse runs",
		},
	)

	MapDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stolog_map_detections_total",
			Help: "Map detection outcomes per combat",
		},
		[]string{"kind"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stolog_parse_run_duration_seconds",
			Help:    "Wall time of a full parse run",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"level"},
	)

	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stolog_hub_clients",
			Help: "Connected websocket subscribers",
		},
	)

	HubMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stolog_hub_messages_sent_total",
			Help: "Websocket messages queued to subscribers",
		},
		[]string{"type"},
	)
)

func RecordRun(level string, d time.Duration) {
	RunDuration.WithLabelValues(level).Observe(d.Seconds())
}

func RecordFile(result string) {
	FilesProcessed.WithLabelValues(result).Inc()
}

func RecordMapDetection(kind string) {
	MapDetections.WithLabelValues(kind).Inc()
}
