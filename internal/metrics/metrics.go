// Package metrics records reconciliation outcomes as Prometheus metrics.
//
// The CLI is short-lived, so nothing is served over HTTP; the registry is
// flushed to a node_exporter textfile when the process exits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tildaslashalef/reposync/internal/reconcile"
)

// Recorder implements reconcile.Observer on its own registry
type Recorder struct {
	registry *prometheus.Registry

	entitiesTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	entityDuration *prometheus.HistogramVec
	ambiguousTotal prometheus.Counter

	passesTotal       *prometheus.CounterVec
	passDuration      prometheus.Histogram
	lastPassSucceeded prometheus.Gauge
	lastPassFailed    prometheus.Gauge
	lastPassTimestamp prometheus.Gauge
}

var _ reconcile.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		entitiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_entities_reconciled_total",
				Help: "Total number of reconciled entities",
			},
			[]string{"kind", "action", "outcome"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_entity_errors_total",
				Help: "Total number of entity failures and advisories by error kind",
			},
			[]string{"kind", "error_kind"},
		),
		entityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposync_entity_duration_seconds",
				Help:    "Time to reconcile one entity",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ambiguousTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposync_ambiguous_matches_total",
				Help: "Total number of name matches that had more than one candidate",
			},
		),

		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_passes_total",
				Help: "Total number of reconciliation passes",
			},
			[]string{"result"},
		),
		passDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reposync_pass_duration_seconds",
				Help:    "Duration of a reconciliation pass",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		lastPassSucceeded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_last_pass_succeeded",
				Help: "Folders that succeeded in the last pass",
			},
		),
		lastPassFailed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_last_pass_failed",
				Help: "Folders that failed in the last pass",
			},
		),
		lastPassTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_last_pass_timestamp_seconds",
				Help: "Unix time the last pass finished",
			},
		),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveResult records one entity outcome
func (r *Recorder) ObserveResult(res *reconcile.Result, elapsed time.Duration) {
	kind := string(res.Kind)

	r.entitiesTotal.WithLabelValues(kind, string(res.Action), outcome(res)).Inc()
	r.entityDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if res.ErrorKind != "" {
		r.errorsTotal.WithLabelValues(kind, string(res.ErrorKind)).Inc()
	}
	if res.Ambiguous {
		r.ambiguousTotal.Inc()
	}
}

// ObserveBatch records a finished pass
func (r *Recorder) ObserveBatch(s *reconcile.BatchSummary) {
	result := "ok"
	switch {
	case s.Cancelled:
		result = "cancelled"
	case s.Failed > 0 || s.ChildrenFailed > 0:
		result = "partial"
	}

	r.passesTotal.WithLabelValues(result).Inc()
	r.passDuration.Observe(s.Duration.Seconds())
	r.lastPassSucceeded.Set(float64(s.Succeeded))
	r.lastPassFailed.Set(float64(s.Failed))
	r.lastPassTimestamp.SetToCurrentTime()
}

// WriteTextfile writes the registry in the text exposition format,
// atomically, for the node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func outcome(res *reconcile.Result) string {
	switch {
	case !res.Success:
		return "failed"
	case res.PartialChildSync:
		return "partial"
	default:
		return "synced"
	}
}
