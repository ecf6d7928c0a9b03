// Package obsmetrics exposes the Prometheus metrics an operator watches
// ChakraOps through: cycle timing, evaluation verdicts, alert volume,
// and freeze/provider incidents. Grounded directly on the teacher's
// internal/interfaces/http.MetricsRegistry (same NewXxx+MustRegister
// shape, same StepTimer helper), with the metric set replaced end to
// end for spec.md's domain instead of the teacher's scan pipeline.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Registry holds every ChakraOps Prometheus metric.
type Registry struct {
	CycleDuration    *prometheus.HistogramVec
	CyclesTotal      *prometheus.CounterVec
	EligibleCount    prometheus.Gauge
	VerdictsTotal    *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	FreezeViolations prometheus.Counter
	ProviderErrors   *prometheus.CounterVec
	RegimeSwitches   *prometheus.CounterVec
	SchedulerRunning prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec
}

// NewRegistry constructs a Registry and registers every metric with the
// default Prometheus registerer.
func NewRegistry() *Registry {
	r := &Registry{
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chakraops_cycle_duration_seconds",
				Help:    "Duration of each heartbeat cycle in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_cycles_total",
				Help: "Total number of heartbeat cycles run, by final status",
			},
			[]string{"status"},
		),

		EligibleCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chakraops_eligible_symbols",
				Help: "Number of symbols ELIGIBLE in the most recent artifact",
			},
		),

		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_verdicts_total",
				Help: "Total per-symbol verdicts emitted, by verdict",
			},
			[]string{"verdict"},
		),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_alerts_total",
				Help: "Total operator alerts raised, by tier",
			},
			[]string{"tier"},
		),

		FreezeViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chakraops_freeze_violations_total",
				Help: "Total market-closed overwrite attempts rejected without force",
			},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_provider_errors_total",
				Help: "Total chain-provider errors, by symbol",
			},
			[]string{"symbol"},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_regime_switches_total",
				Help: "Total regime changes observed, by from/to regime",
			},
			[]string{"from_regime", "to_regime"},
		),

		SchedulerRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chakraops_scheduler_running",
				Help: "1 if the heartbeat worker is currently running, else 0",
			},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chakraops_http_request_duration_seconds",
				Help:    "Duration of query-API HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "status"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chakraops_http_requests_total",
				Help: "Total query-API HTTP requests, by path and status",
			},
			[]string{"path", "status"},
		),
	}

	prometheus.MustRegister(
		r.CycleDuration,
		r.CyclesTotal,
		r.EligibleCount,
		r.VerdictsTotal,
		r.AlertsTotal,
		r.FreezeViolations,
		r.ProviderErrors,
		r.RegimeSwitches,
		r.SchedulerRunning,
		r.RequestDuration,
		r.RequestsTotal,
	)

	return r
}

// CycleTimer tracks one heartbeat cycle's duration, mirroring the
// teacher's StepTimer.
type CycleTimer struct {
	registry *Registry
	start    time.Time
}

// StartCycleTimer begins timing a heartbeat cycle.
func (r *Registry) StartCycleTimer() *CycleTimer {
	return &CycleTimer{registry: r, start: time.Now()}
}

// Stop records the cycle's duration and increments the status counter.
func (ct *CycleTimer) Stop(status string) {
	duration := time.Since(ct.start)
	ct.registry.CycleDuration.WithLabelValues(status).Observe(duration.Seconds())
	ct.registry.CyclesTotal.WithLabelValues(status).Inc()
	log.Debug().Str("status", status).Dur("duration", duration).Msg("obsmetrics: cycle completed")
}

// RecordVerdicts sets the eligible gauge and increments each verdict's
// counter for one completed evaluation.
func (r *Registry) RecordVerdicts(eligible int, verdictCounts map[string]int) {
	r.EligibleCount.Set(float64(eligible))
	for verdict, count := range verdictCounts {
		r.VerdictsTotal.WithLabelValues(verdict).Add(float64(count))
	}
}

// RecordAlert increments the alert counter for the given tier.
func (r *Registry) RecordAlert(tier string) {
	r.AlertsTotal.WithLabelValues(tier).Inc()
}

// RecordFreezeViolation increments the freeze-violation counter.
func (r *Registry) RecordFreezeViolation() {
	r.FreezeViolations.Inc()
}

// RecordProviderError increments the provider-error counter for symbol.
func (r *Registry) RecordProviderError(symbol string) {
	r.ProviderErrors.WithLabelValues(symbol).Inc()
}

// RecordRegimeSwitch increments the regime-switch counter for the
// observed from/to transition.
func (r *Registry) RecordRegimeSwitch(from, to string) {
	r.RegimeSwitches.WithLabelValues(from, to).Inc()
}

// RecordRequest observes one HTTP request's duration and status on the
// query-API server.
func (r *Registry) RecordRequest(path, status string, duration time.Duration) {
	r.RequestDuration.WithLabelValues(path, status).Observe(duration.Seconds())
	r.RequestsTotal.WithLabelValues(path, status).Inc()
}

// SetSchedulerRunning publishes the worker's running state as a gauge.
func (r *Registry) SetSchedulerRunning(running bool) {
	if running {
		r.SchedulerRunning.Set(1)
		return
	}
	r.SchedulerRunning.Set(0)
}
