// Package heartbeat implements the Heartbeat Scheduler (C4): a single
// background worker that runs the evaluation pipeline on a fixed
// cadence, detects state changes against the previous cycle, and raises
// deduplicated operator alerts (spec.md §4.4). Grounded on the
// teacher's internal/scheduler.Scheduler — the ticker + select{ctx.Done,
// ticker.C} loop and its Status/uptime bookkeeping — generalized from a
// multi-job cron list to the single fixed-interval cycle spec.md
// describes, and cooperative cancellation that only checks between
// cycles (spec.md: "a cancel therefore has a worst-case latency of one
// cycle duration plus the sleep interval").
package heartbeat

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/decisionstore"
	"github.com/chakraops/chakraops/internal/evalengine"
	"github.com/chakraops/chakraops/internal/marketclock"
	"github.com/chakraops/chakraops/internal/obsmetrics"
	"github.com/chakraops/chakraops/internal/regime"
	"github.com/chakraops/chakraops/internal/snapshot"
	"github.com/chakraops/chakraops/internal/storepg"
)

// Status is the heartbeat's published health state (spec.md §4.4
// "Health fields").
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusError       Status = "ERROR"
	StatusNoRegime    Status = "NO_REGIME"
	StatusNoData      Status = "NO_DATA"
	StatusNoSnapshot  Status = "NO_SNAPSHOT"
	StatusRegimeStale Status = "REGIME_STALE"
)

// Health is the worker's published, lock-guarded state, read by the API
// layer through Worker.Health (spec.md §4.4 "Health fields").
type Health struct {
	LastCycleTime time.Time
	Status        Status
	DataTimestamp time.Time
	LastError     string
	IsRunning     bool
}

// Config holds the worker's tunables (spec.md §4.4, §6.4).
type Config struct {
	Interval             time.Duration
	RegimeStaleThreshold time.Duration
	RemovalAlertCooldown time.Duration
	BenchmarkSymbol      string
	PreferredRegimes     []string
	MinVolume            float64
	Mode                 string
}

// singletonGuard enforces "at most one worker per process" (spec.md
// §4.4 "Scheduling model"). A package-level guard rather than a
// per-instance one, since the invariant is process-wide.
var singletonGuard int32

// Worker is the single background worker driving the heartbeat cycle.
type Worker struct {
	cfg      Config
	repos    *storepg.Repos
	engine   *evalengine.Engine
	store    *decisionstore.Store
	clock    *marketclock.Clock
	detector *regime.Detector
	alerts   *AlertDedup
	metrics  *obsmetrics.Registry

	mu     sync.RWMutex
	health Health

	prevSymbols       map[string]bool
	prevRegime        string
	firstCycle        bool
	warnedNoBenchmark bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker constructs a Worker. Call Start to begin the cycle loop.
func NewWorker(cfg Config, repos *storepg.Repos, engine *evalengine.Engine, store *decisionstore.Store, clock *marketclock.Clock, detector *regime.Detector) *Worker {
	return &Worker{
		cfg:        cfg,
		repos:      repos,
		engine:     engine,
		store:      store,
		clock:      clock,
		detector:   detector,
		alerts:     NewAlertDedup(cfg.RemovalAlertCooldown),
		firstCycle: true,
	}
}

// SetMetrics attaches a Prometheus registry the worker will report cycle
// timing, alerts, and regime switches through. Optional: a Worker with
// no registry attached simply skips recording.
func (w *Worker) SetMetrics(m *obsmetrics.Registry) {
	w.metrics = m
}

// ErrAlreadyRunning is returned by Start when a worker is already
// running in this process.
type ErrAlreadyRunning struct{}

func (ErrAlreadyRunning) Error() string {
	return "heartbeat: a worker is already running in this process"
}

// Start begins the cycle loop in a background goroutine, enforcing the
// process-level singleton guard.
func (w *Worker) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&singletonGuard, 0, 1) {
		return ErrAlreadyRunning{}
	}

	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.setRunning(true)

	go w.loop(cctx)
	return nil
}

// Stop signals the worker to stop and waits up to timeout for it to
// finish its current cycle. A stop with no response after the bounded
// join timeout logs a warning and returns without error (spec.md §4.4
// "Cancellation & shutdown").
func (w *Worker) Stop(timeout time.Duration) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("heartbeat: worker did not join within bounded timeout")
		return nil
	}
}

// Health returns a copy of the worker's published state.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.health
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&singletonGuard, 0)
	defer w.setRunning(false)

	for {
		start := time.Now()
		w.RunOnce(ctx)
		elapsed := time.Since(start)

		sleepFor := w.cfg.Interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

// RunOnce executes a single cycle synchronously (spec.md §4.4's 9
// ordered steps). Exported so GetSchedulerHealth/RunSchedulerOnce-style
// callers can drive a cycle outside the ticker loop (e.g. a forced
// manual run).
func (w *Worker) RunOnce(ctx context.Context) {
	now := time.Now()
	var timer *obsmetrics.CycleTimer
	if w.metrics != nil {
		timer = w.metrics.StartCycleTimer()
	}
	finalize := func(status Status) {
		if timer != nil {
			timer.Stop(string(status))
		}
	}

	// Step 1: regime + age, with recompute-if-stale and the bootstrap rule.
	regimeValue, dataTimestamp, regimeStatus := w.resolveRegime(ctx, now)
	if regimeStatus != "" && regimeStatus != StatusRegimeStale {
		w.recordHealth(now, regimeStatus, dataTimestamp, "")
		finalize(regimeStatus)
		return
	}

	// Step 2: enabled universe.
	entries, err := w.repos.Universe.Enabled(ctx)
	if err != nil {
		w.recordHealth(now, StatusError, dataTimestamp, err.Error())
		finalize(StatusError)
		return
	}
	w.warnIfBenchmarkMissing(entries)

	// Step 3: snapshot ∩ enabled universe, after normalization.
	snapshotID, err := w.repos.Snapshot.GetLatestID(ctx)
	if err != nil {
		w.recordHealth(now, StatusError, dataTimestamp, err.Error())
		finalize(StatusError)
		return
	}
	if snapshotID == "" {
		w.recordHealth(now, StatusNoSnapshot, dataTimestamp, "")
		finalize(StatusNoSnapshot)
		return
	}

	rowsBySymbol, err := w.repos.Snapshot.LoadData(ctx, snapshotID)
	if err != nil {
		w.recordHealth(now, StatusError, dataTimestamp, err.Error())
		finalize(StatusError)
		return
	}

	contexts := buildSymbolContexts(entries, rowsBySymbol)
	withData := 0
	for _, sc := range contexts {
		if sc.Row.HasData {
			withData++
		}
	}
	if withData == 0 {
		w.recordHealth(now, StatusNoData, dataTimestamp, "empty snapshot ∩ universe intersection")
		finalize(StatusNoData)
		return
	}

	// Step 4+5: evaluate the intersection and persist the artifact.
	artifact := w.engine.Run(ctx, contexts, string(regimeValue), string(w.clock.Phase(now)), w.cfg.Mode)
	if err := w.store.SetLatest(artifact); err != nil {
		w.recordHealth(now, StatusError, dataTimestamp, err.Error())
		finalize(StatusError)
		return
	}
	log.Info().
		Int("eligible", artifact.Metadata.EligibleCount).
		Int("evaluated_stage1", artifact.Metadata.EvaluatedCountStage1).
		Int("evaluated_stage2", artifact.Metadata.EvaluatedCountStage2).
		Msg("heartbeat: cycle evaluation complete")
	if w.metrics != nil {
		verdictCounts := make(map[string]int)
		for _, sym := range artifact.Symbols {
			verdictCounts[string(sym.Verdict)]++
		}
		w.metrics.RecordVerdicts(artifact.Metadata.EligibleCount, verdictCounts)
	}

	// Step 6: deltas vs the previous cycle.
	currentEligible := eligibleSet(artifact)
	if !w.firstCycle {
		newSymbols, removedSymbols := diffEligible(w.prevSymbols, currentEligible)
		regimeChanged := string(regimeValue) != w.prevRegime

		// Step 7: alerts per the dedup policy.
		w.alerts.NewCandidates(newSymbols)
		removalFired := w.alerts.RemovedCandidates(removedSymbols, now)
		if w.metrics != nil {
			if len(newSymbols) > 0 {
				w.metrics.RecordAlert(string(TierInfo))
			}
			if removalFired {
				w.metrics.RecordAlert(string(TierAction))
			}
		}
		if regimeChanged {
			w.alerts.RegimeChanged(w.prevRegime, string(regimeValue))
			if w.metrics != nil {
				w.metrics.RecordAlert(string(TierWatch))
				w.metrics.RecordRegimeSwitch(w.prevRegime, string(regimeValue))
			}
		}
	}

	w.prevSymbols = currentEligible
	w.prevRegime = string(regimeValue)
	w.firstCycle = false

	// Step 8: health.
	finalStatus := StatusSuccess
	if regimeStatus == StatusRegimeStale {
		finalStatus = StatusRegimeStale
	}
	w.recordHealth(now, finalStatus, dataTimestamp, "")
	finalize(finalStatus)

	// Step 9 (sleep) is the loop's responsibility, not RunOnce's.
}

func (w *Worker) recordHealth(at time.Time, status Status, dataTimestamp time.Time, lastError string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health.LastCycleTime = at
	w.health.Status = status
	w.health.DataTimestamp = dataTimestamp
	w.health.LastError = lastError
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	w.health.IsRunning = running
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.SetSchedulerRunning(running)
	}
}

func (w *Worker) warnIfBenchmarkMissing(entries []storepg.UniverseEntry) {
	if w.warnedNoBenchmark || w.cfg.BenchmarkSymbol == "" {
		return
	}
	for _, e := range entries {
		if e.Symbol == w.cfg.BenchmarkSymbol {
			return
		}
	}
	log.Warn().Str("benchmark", w.cfg.BenchmarkSymbol).Msg("heartbeat: critical benchmark missing from enabled universe")
	w.warnedNoBenchmark = true
}

// resolveRegime implements spec.md §4.4 step 1: read the latest
// persisted regime and its age; if stale or missing, recompute from the
// two most recent snapshots' benchmark price. The bootstrap rule
// ("if only one snapshot exists, treat the prior price as equal to the
// current price") is implemented by defaulting prevPrice to curr.Price
// whenever there is no previous snapshot.
func (w *Worker) resolveRegime(ctx context.Context, now time.Time) (regime.Regime, time.Time, Status) {
	rec, err := w.repos.Regime.Latest(ctx)
	if err != nil {
		return "", time.Time{}, StatusError
	}
	if rec != nil && now.Sub(rec.DetectedAt) <= w.cfg.RegimeStaleThreshold {
		return regime.Regime(rec.Regime), rec.DetectedAt, ""
	}

	latestID, err := w.repos.Snapshot.GetLatestID(ctx)
	if err != nil {
		return "", time.Time{}, StatusError
	}
	if latestID == "" {
		if rec != nil {
			return regime.Regime(rec.Regime), rec.DetectedAt, StatusRegimeStale
		}
		return "", time.Time{}, StatusNoRegime
	}

	prices, err := w.repos.Snapshot.GetPrices(ctx, latestID)
	if err != nil {
		return "", time.Time{}, StatusError
	}
	curr, ok := prices[w.cfg.BenchmarkSymbol]
	if !ok {
		if rec != nil {
			return regime.Regime(rec.Regime), rec.DetectedAt, StatusRegimeStale
		}
		return "", time.Time{}, StatusNoData
	}

	previousID, err := w.repos.Snapshot.GetPreviousID(ctx, latestID)
	if err != nil {
		return "", time.Time{}, StatusError
	}

	prevPrice := curr.Price
	if previousID != "" {
		if prevPrices, err := w.repos.Snapshot.GetPrices(ctx, previousID); err == nil {
			if p, ok := prevPrices[w.cfg.BenchmarkSymbol]; ok {
				prevPrice = p.Price
			}
		}
	}

	result := w.detector.Detect(w.cfg.BenchmarkSymbol, prevPrice, curr.Price, now)
	if _, err := w.repos.Regime.Insert(ctx, storepg.RegimeRecord{
		Regime:     string(result.Regime),
		DetectedAt: result.ComputedAt,
		Signals:    map[string]float64{"benchmark_return": result.BenchmarkReturn},
		Stable:     previousID != "",
	}); err != nil {
		log.Warn().Err(err).Msg("heartbeat: failed to persist recomputed regime")
	}
	return result.Regime, result.ComputedAt, ""
}

// buildSymbolContexts reduces each universe entry to an
// evalengine.SymbolContext, using the most recent row for that symbol in
// the snapshot or a has_data=false placeholder when the symbol is
// entirely absent (spec.md §3.2 invariant 3: "no silent drops").
func buildSymbolContexts(entries []storepg.UniverseEntry, rowsBySymbol map[string][]snapshot.Row) []evalengine.SymbolContext {
	contexts := make([]evalengine.SymbolContext, 0, len(entries))
	for _, e := range entries {
		row := snapshot.Row{Symbol: e.Symbol, HasData: false}
		if rows, ok := rowsBySymbol[e.Symbol]; ok && len(rows) > 0 {
			row = rows[len(rows)-1]
		}
		contexts = append(contexts, evalengine.SymbolContext{
			Symbol: e.Symbol, Row: row, Priority: e.Priority, Sector: e.Sector,
		})
	}
	return contexts
}

// eligibleSet extracts the set of ELIGIBLE symbols from an artifact.
func eligibleSet(artifact *evalengine.Artifact) map[string]bool {
	out := make(map[string]bool, len(artifact.Symbols))
	for _, s := range artifact.Symbols {
		if s.Verdict == evalengine.VerdictEligible {
			out[s.Symbol] = true
		}
	}
	return out
}

// diffEligible computes new_symbols/removed_symbols (spec.md §4.4 step
// 6), sorted for deterministic alert ordering.
func diffEligible(prev, curr map[string]bool) (newSymbols, removedSymbols []string) {
	for sym := range curr {
		if !prev[sym] {
			newSymbols = append(newSymbols, sym)
		}
	}
	for sym := range prev {
		if !curr[sym] {
			removedSymbols = append(removedSymbols, sym)
		}
	}
	sort.Strings(newSymbols)
	sort.Strings(removedSymbols)
	return newSymbols, removedSymbols
}
