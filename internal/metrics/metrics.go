// Package metrics exposes append and verification counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/custody/internal/ledger"
)

const namespace = "custody"

// resultOK labels successful appends.
const resultOK = "ok"

// Registry owns the custody collectors. It implements engine.Metrics and
// verify.Metrics.
type Registry struct {
	reg *prometheus.Registry

	appends        *prometheus.CounterVec
	appendDuration prometheus.Histogram
	appendAttempts prometheus.Histogram
	conflicts      prometheus.Counter
	queueDepth     prometheus.Gauge

	verifications  *prometheus.CounterVec
	entriesChecked *prometheus.CounterVec
	verifyDuration *prometheus.HistogramVec
}

// New creates a Registry with the Go runtime and process collectors
// registered alongside the custody metrics.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Append requests by result code.",
		}, []string{"result"}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Time from dequeue to reply for append requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		appendAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_attempts",
			Help:      "Compare-and-append attempts per request.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_conflicts_total",
			Help:      "Compare-and-append races lost to another writer.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "append_queue_depth",
			Help:      "Append requests waiting for the writer.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification runs by kind and verdict.",
		}, []string{"kind", "valid"}),
		entriesChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verified_entries_total",
			Help:      "Entries that passed verification.",
		}, []string{"kind"}),
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_seconds",
			Help:      "Verification run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.appends,
		r.appendDuration,
		r.appendAttempts,
		r.conflicts,
		r.queueDepth,
		r.verifications,
		r.entriesChecked,
		r.verifyDuration,
	)
	return r
}

// Register adds an extra collector, such as a ChainCollector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveAppend implements engine.Metrics.
func (r *Registry) ObserveAppend(code ledger.Code, attempts int, elapsed time.Duration) {
	result := string(code)
	if result == "" {
		result = resultOK
	}
	r.appends.WithLabelValues(result).Inc()
	if attempts > 0 {
		r.appendAttempts.Observe(float64(attempts))
		r.appendDuration.Observe(elapsed.Seconds())
	}
}

// ObserveConflict implements engine.Metrics.
func (r *Registry) ObserveConflict() {
	r.conflicts.Inc()
}

// SetQueueDepth implements engine.Metrics.
func (r *Registry) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// ObserveVerification implements verify.Metrics.
func (r *Registry) ObserveVerification(kind string, valid bool, checked int64, elapsed time.Duration) {
	verdict := "false"
	if valid {
		verdict = "true"
	}
	r.verifications.WithLabelValues(kind, verdict).Inc()
	r.entriesChecked.WithLabelValues(kind).Add(float64(checked))
	r.verifyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
