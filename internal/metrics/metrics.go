// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkrelay"

// Metrics satisfies the scheduler's recorder and also counts Telegram updates.
type Metrics struct {
	batchesTotal    *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	batchesInFlight prometheus.Gauge
	downloadsTotal  *prometheus.CounterVec
	downloadBytes   *prometheus.HistogramVec
	updatesTotal    *prometheus.CounterVec
}

// New registers every collector with reg; registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Finished batches by final state.",
		}, []string{"state"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time from batch start to cleanup.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"state"}),
		batchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_in_flight",
			Help:      "Batches currently running.",
		}),
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Per-URL download results by link type and outcome.",
		}, []string{"link_type", "outcome"}),
		downloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_size_bytes",
			Help:      "Size of successfully downloaded files.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"link_type"}),
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Incoming chat updates by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.batchesInFlight,
		m.downloadsTotal,
		m.downloadBytes,
		m.updatesTotal,
	)
	return m
}

func (m *Metrics) BatchStarted() {
	m.batchesInFlight.Inc()
}

func (m *Metrics) BatchFinished(state string, duration time.Duration) {
	m.batchesInFlight.Dec()
	m.batchesTotal.WithLabelValues(state).Inc()
	m.batchDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func (m *Metrics) DownloadFinished(linkType, outcome string, bytes int64) {
	m.downloadsTotal.WithLabelValues(linkType, outcome).Inc()
	if outcome == "ok" {
		m.downloadBytes.WithLabelValues(linkType).Observe(float64(bytes))
	}
}

// UpdateReceived counts one incoming update; kind is start, text, document or ignored.
func (m *Metrics) UpdateReceived(kind string) {
	m.updatesTotal.WithLabelValues(kind).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
