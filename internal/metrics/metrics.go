// Package metrics exposes Prometheus instrumentation for the fetch pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors recorded by the fetch coordinator. A nil
// *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	fetchRequests *prometheus.CounterVec
	fetchRetries  prometheus.Counter
	fetchDuration prometheus.Histogram
	batchRows     prometheus.Gauge
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airquality",
			Name:      "fetch_requests_total",
			Help:      "Terminal fetch outcomes per site and pollutant.",
		}, []string{"site", "pollutant", "status"}),
		fetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "airquality",
			Name:      "fetch_retries_total",
			Help:      "Retry attempts across all fetch tuples.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airquality",
			Name:      "fetch_duration_seconds",
			Help:      "Wall-clock duration of one fetch tuple including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		batchRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "airquality",
			Name:      "batch_rows",
			Help:      "Tidy rows produced by the most recent batch.",
		}),
	}
}

// FetchDone records one tuple reaching a terminal state.
func (m *Metrics) FetchDone(site, pollutant string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.fetchRequests.WithLabelValues(site, pollutant, status).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

// FetchRetried records one retry attempt.
func (m *Metrics) FetchRetried() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

// BatchRows records the size of the latest merged table.
func (m *Metrics) BatchRows(n int) {
	if m == nil {
		return
	}
	m.batchRows.Set(float64(n))
}
