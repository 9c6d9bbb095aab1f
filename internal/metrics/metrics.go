// Package metrics provides Prometheus metrics for release config checks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugenenazirov/releasecheck/internal/checks"
)

// Values of the outcome label.
const (
	OutcomePass = "pass"
	OutcomeFail = "fail"
)

// Recorder owns a registry and the check metrics registered on it.
type Recorder struct {
	registry *prometheus.Registry

	ChecksTotal   *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	LastRunPassed prometheus.Gauge
}

// NewRecorder registers the check metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "releasecheck_checks_total",
			Help: "Number of check executions by outcome.",
		}, []string{"check", "outcome"}),
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "releasecheck_check_duration_seconds",
			Help:    "Time spent running a single check.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"check"}),
		LastRunPassed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "releasecheck_last_run_passed",
			Help: "1 when the most recent suite run passed, 0 otherwise.",
		}),
	}
}

// Observe records one check result. It matches the checks.WithObserver signature.
func (r *Recorder) Observe(res checks.Result) {
	outcome := OutcomePass
	if !res.Passed() {
		outcome = OutcomeFail
	}
	r.ChecksTotal.WithLabelValues(res.Check, outcome).Inc()
	r.CheckDuration.WithLabelValues(res.Check).Observe(res.Duration.Seconds())
}

// RecordReport updates the last-run gauge.
func (r *Recorder) RecordReport(report checks.Report) {
	if report.Passed() {
		r.LastRunPassed.Set(1)
		return
	}
	r.LastRunPassed.Set(0)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
