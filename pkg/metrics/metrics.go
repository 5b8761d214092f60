// Package metrics defines the Prometheus collectors for an indexing run and
// exposes them for scraping or as a node-exporter textfile.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	LinesReadTotal       prometheus.Counter
	MessagesRoutedTotal  *prometheus.CounterVec
	UnroutableWordsTotal prometheus.Counter
	WorkerEntries        *prometheus.GaugeVec
	WorkerFailuresTotal  *prometheus.CounterVec
	MergeBytesTotal      prometheus.Counter
	RunDurationSeconds   prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests that only read values want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexgen_lines_read_total",
				Help: "Total input lines read by the orchestrator.",
			},
		),
		MessagesRoutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexgen_messages_routed_total",
				Help: "Total word messages delivered to each worker channel.",
			},
			[]string{"worker"},
		),
		UnroutableWordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexgen_unroutable_words_total",
				Help: "Total tokens dropped because their first byte is outside a-z.",
			},
		),
		WorkerEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexgen_worker_entries",
				Help: "Distinct words written by each worker in the last run.",
			},
			[]string{"worker"},
		),
		WorkerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexgen_worker_failures_total",
				Help: "Total worker failures by worker id.",
			},
			[]string{"worker"},
		),
		MergeBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexgen_merge_bytes_total",
				Help: "Total bytes copied into final indexes by the merger.",
			},
		),
		RunDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexgen_run_duration_seconds",
				Help:    "Wall-clock duration of complete indexing runs.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.LinesReadTotal,
			m.MessagesRoutedTotal,
			m.UnroutableWordsTotal,
			m.WorkerEntries,
			m.WorkerFailuresTotal,
			m.MergeBytesTotal,
			m.RunDurationSeconds,
		)
	}
	return m
}

// WorkerLabel is the label value used for a worker id.
func WorkerLabel(worker int) string {
	return strconv.Itoa(worker)
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, replacing the file atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
