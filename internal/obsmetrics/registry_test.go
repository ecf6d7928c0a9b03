package obsmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegistry builds a Registry against a private Prometheus
// registerer so parallel/successive test runs never collide with
// each other (or with a process-wide NewRegistry() call) the way a
// second call to the default MustRegister would.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	r := &Registry{
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cycle_duration_seconds", Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cycles_total"}, []string{"status"}),
		EligibleCount: prometheus.NewGauge(prometheus.GaugeOpts{Name: "eligible_symbols"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "verdicts_total"}, []string{"verdict"}),
		AlertsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "alerts_total"}, []string{"tier"}),
		FreezeViolations: prometheus.NewCounter(prometheus.CounterOpts{Name: "freeze_violations_total"}),
		ProviderErrors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_errors_total"}, []string{"symbol"}),
		RegimeSwitches:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "regime_switches_total"}, []string{"from_regime", "to_regime"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{Name: "scheduler_running"}),
		RequestDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"path", "status"}),
		RequestsTotal:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "http_requests_total"}, []string{"path", "status"}),
	}
	reg.MustRegister(
		r.CycleDuration, r.CyclesTotal, r.EligibleCount, r.VerdictsTotal, r.AlertsTotal,
		r.FreezeViolations, r.ProviderErrors, r.RegimeSwitches, r.SchedulerRunning,
		r.RequestDuration, r.RequestsTotal,
	)
	return r
}

func TestNewRegistry_RegistersWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		reg := prometheus.NewRegistry()
		old := prometheus.DefaultRegisterer
		prometheus.DefaultRegisterer = reg
		defer func() { prometheus.DefaultRegisterer = old }()
		NewRegistry()
	})
}

func TestCycleTimer_StopRecordsDurationAndCount(t *testing.T) {
	r := newTestRegistry(t)
	timer := r.StartCycleTimer()
	time.Sleep(time.Millisecond)
	timer.Stop("SUCCESS")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.CyclesTotal.WithLabelValues("SUCCESS")))
}

func TestRecordVerdicts_SetsGaugeAndIncrementsCounters(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordVerdicts(2, map[string]int{"ELIGIBLE": 2, "REJECTED": 3})

	assert.Equal(t, float64(2), testutil.ToFloat64(r.EligibleCount))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("ELIGIBLE")))
	assert.Equal(t, float64(3), testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("REJECTED")))
}

func TestRecordAlert_IncrementsByTier(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordAlert("ACTION")
	r.RecordAlert("ACTION")
	r.RecordAlert("WATCH")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.AlertsTotal.WithLabelValues("ACTION")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.AlertsTotal.WithLabelValues("WATCH")))
}

func TestRecordFreezeViolation_Increments(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordFreezeViolation()
	r.RecordFreezeViolation()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.FreezeViolations))
}

func TestRecordProviderError_IncrementsBySymbol(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordProviderError("AAPL")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.ProviderErrors.WithLabelValues("AAPL")))
}

func TestRecordRegimeSwitch_IncrementsByTransition(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordRegimeSwitch("BULL", "BEAR")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.RegimeSwitches.WithLabelValues("BULL", "BEAR")))
}

func TestSetSchedulerRunning_TogglesGauge(t *testing.T) {
	r := newTestRegistry(t)
	r.SetSchedulerRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.SchedulerRunning))

	r.SetSchedulerRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.SchedulerRunning))
}

func TestRecordRequest_ObservesDurationAndCount(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordRequest("/healthz", "200", 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.RequestsTotal.WithLabelValues("/healthz", "200")))
}
