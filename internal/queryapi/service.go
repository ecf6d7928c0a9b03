// Package queryapi implements the spec.md §6.3 core API surface as a
// plain Go interface, with a thin gorilla/mux HTTP adapter in http.go.
// Grounded on the teacher's internal/interfaces/http.Server: the same
// separation of a business-logic-free transport layer from a handlers
// object, reduced here to the handful of read/evaluate operations
// spec.md actually names (no candidates/regime/explain endpoints —
// those are Non-goals of this surface).
package queryapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/coreerrors"
	"github.com/chakraops/chakraops/internal/decisionstore"
	"github.com/chakraops/chakraops/internal/evalengine"
	"github.com/chakraops/chakraops/internal/freezeguard"
	"github.com/chakraops/chakraops/internal/heartbeat"
	"github.com/chakraops/chakraops/internal/marketclock"
	"github.com/chakraops/chakraops/internal/snapshot"
	"github.com/chakraops/chakraops/internal/storepg"
)

// RunResult is RunSchedulerOnce's return shape (spec.md §6.3).
type RunResult struct {
	Started bool   `json:"started"`
	Reason  string `json:"reason,omitempty"`
}

// HealthSnapshot is GetSchedulerHealth's return shape (spec.md §6.3).
type HealthSnapshot struct {
	IsRunning     bool      `json:"is_running"`
	LastCycleTime time.Time `json:"last_cycle_time"`
	Status        string    `json:"status"`
	DataTimestamp time.Time `json:"data_timestamp"`
	LastError     string    `json:"last_error,omitempty"`
}

// Service is the spec.md §6.3 core API surface, implemented directly
// against the decision store, evaluation engine, heartbeat worker, and
// market clock — no business logic lives in the HTTP adapter.
type Service interface {
	GetActiveDecision(phase marketclock.Phase) string
	GetLatestArtifact() (*evalengine.Artifact, error)
	GetArtifactByRun(symbol, runID string) (*evalengine.Artifact, error)
	EvaluateUniverse(ctx context.Context, symbols []string, mode string, force, skip bool) (*evalengine.Artifact, error)
	EvaluateSingleSymbolAndMerge(ctx context.Context, symbol, mode string, force, skip bool) (*evalengine.Artifact, error)
	RunSchedulerOnce(ctx context.Context, force, skip bool) RunResult
	GetMarketPhase(at time.Time) marketclock.Phase
	IsMarketOpen() bool
	GetSchedulerHealth() HealthSnapshot
}

// service is Service's concrete implementation.
type service struct {
	store  *decisionstore.Store
	engine *evalengine.Engine
	repos  *storepg.Repos
	worker *heartbeat.Worker
	clock  *marketclock.Clock
	gate   *freezeguard.MarketHoursGate
	nowFn  func() time.Time
}

// NewService wires the decision store, evaluation engine, repositories,
// heartbeat worker, market clock, and overwrite gate into one Service.
func NewService(store *decisionstore.Store, engine *evalengine.Engine, repos *storepg.Repos, worker *heartbeat.Worker, clock *marketclock.Clock, gate *freezeguard.MarketHoursGate) Service {
	return &service{store: store, engine: engine, repos: repos, worker: worker, clock: clock, gate: gate, nowFn: time.Now}
}

// GetActiveDecision returns the frozen file path when one exists and
// phase is not OPEN, else the canonical path (spec.md §6.3).
func (s *service) GetActiveDecision(phase marketclock.Phase) string {
	return s.store.ActivePathForPhase(phase)
}

func (s *service) GetLatestArtifact() (*evalengine.Artifact, error) {
	artifact, err := s.store.GetLatest()
	if err != nil {
		return nil, coreerrors.Store("read latest artifact", err)
	}
	return artifact, nil
}

func (s *service) GetArtifactByRun(symbol, runID string) (*evalengine.Artifact, error) {
	artifact, err := s.store.GetByRun(symbol, runID)
	if err != nil {
		return nil, coreerrors.Store("read artifact by run", err)
	}
	return artifact, nil
}

// EvaluateUniverse runs a full evaluation over the given symbols,
// subject to the market-hours overwrite gate (spec.md §4.5, §6.3's
// conflict-on-closed-market-without-force behavior, S2).
func (s *service) EvaluateUniverse(ctx context.Context, symbols []string, mode string, force, skip bool) (*evalengine.Artifact, error) {
	decision, err := s.gate.CheckOverwrite(force, skip, s.nowFn())
	if err != nil {
		return nil, coreerrors.Config("overwrite flags", err)
	}
	if !decision.Allowed {
		return nil, coreerrors.FreezeViolation(decision.Reason)
	}

	contexts, err := s.buildContexts(ctx, symbols)
	if err != nil {
		return nil, err
	}

	regimeValue, phase := s.currentRegimeAndPhase(ctx)
	artifact := s.engine.Run(ctx, contexts, regimeValue, string(phase), mode)
	if err := s.store.SetLatest(artifact); err != nil {
		return nil, coreerrors.Store("persist evaluated artifact", err)
	}
	return artifact, nil
}

// EvaluateSingleSymbolAndMerge re-evaluates one symbol and merges the
// result into the latest artifact, preserving every other symbol's row
// byte-identical (spec.md §6.3, S3).
func (s *service) EvaluateSingleSymbolAndMerge(ctx context.Context, symbol, mode string, force, skip bool) (*evalengine.Artifact, error) {
	decision, err := s.gate.CheckOverwrite(force, skip, s.nowFn())
	if err != nil {
		return nil, coreerrors.Config("overwrite flags", err)
	}
	if !decision.Allowed {
		return nil, coreerrors.FreezeViolation(decision.Reason)
	}

	artifact, err := s.store.GetLatest()
	if err != nil {
		return nil, coreerrors.Store("read latest artifact for merge", err)
	}
	if artifact == nil {
		return nil, coreerrors.Store("no latest artifact to merge into", nil)
	}

	contexts, err := s.buildContexts(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		return nil, fmt.Errorf("queryapi: symbol %s not found in enabled universe", symbol)
	}

	regimeValue, _ := s.currentRegimeAndPhase(ctx)
	updated := s.engine.MergeSymbol(ctx, artifact, contexts[0], regimeValue)
	if err := s.store.SetLatest(updated); err != nil {
		return nil, coreerrors.Store("persist merged artifact", err)
	}
	return updated, nil
}

// RunSchedulerOnce drives one heartbeat cycle synchronously, refusing
// when the market is closed and no force flag is given (spec.md §6.3).
func (s *service) RunSchedulerOnce(ctx context.Context, force, skip bool) RunResult {
	decision, err := s.gate.CheckOverwrite(force, skip, s.nowFn())
	if err != nil {
		return RunResult{Started: false, Reason: err.Error()}
	}
	if !decision.Allowed {
		return RunResult{Started: false, Reason: decision.Reason}
	}

	s.worker.RunOnce(ctx)
	return RunResult{Started: true}
}

func (s *service) GetMarketPhase(at time.Time) marketclock.Phase {
	return s.clock.Phase(at)
}

func (s *service) IsMarketOpen() bool {
	return s.clock.IsOpen(s.nowFn())
}

func (s *service) GetSchedulerHealth() HealthSnapshot {
	h := s.worker.Health()
	return HealthSnapshot{
		IsRunning:     h.IsRunning,
		LastCycleTime: h.LastCycleTime,
		Status:        string(h.Status),
		DataTimestamp: h.DataTimestamp,
		LastError:     h.LastError,
	}
}

// currentRegimeAndPhase reads the most recently persisted regime
// (falling back to UNKNOWN if none exists yet) and the current market
// phase, for use by the on-demand evaluation paths.
func (s *service) currentRegimeAndPhase(ctx context.Context) (string, marketclock.Phase) {
	regimeValue := "UNKNOWN"
	if rec, err := s.repos.Regime.Latest(ctx); err == nil && rec != nil {
		regimeValue = rec.Regime
	}
	return regimeValue, s.clock.Phase(s.nowFn())
}

// buildContexts resolves symbols against the enabled universe and the
// latest snapshot, the same universe ∩ snapshot join the heartbeat
// worker performs for its own cycle (internal/heartbeat/worker.go).
func (s *service) buildContexts(ctx context.Context, symbols []string) ([]evalengine.SymbolContext, error) {
	entries, err := s.repos.Universe.Enabled(ctx)
	if err != nil {
		return nil, coreerrors.SnapshotBuild("read enabled universe", err)
	}
	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}
	filtered := entries[:0]
	for _, e := range entries {
		if wanted[e.Symbol] {
			filtered = append(filtered, e)
		}
	}

	snapshotID, err := s.repos.Snapshot.GetLatestID(ctx)
	if err != nil {
		return nil, coreerrors.SnapshotBuild("read latest snapshot id", err)
	}

	var rowsBySymbol map[string][]snapshot.Row
	if snapshotID != "" {
		rowsBySymbol, err = s.repos.Snapshot.LoadData(ctx, snapshotID)
		if err != nil {
			return nil, coreerrors.SnapshotBuild("load snapshot data", err)
		}
	}

	contexts := make([]evalengine.SymbolContext, 0, len(filtered))
	for _, e := range filtered {
		row := snapshot.Row{Symbol: e.Symbol, HasData: false}
		if rows, ok := rowsBySymbol[e.Symbol]; ok && len(rows) > 0 {
			row = rows[len(rows)-1]
		}
		contexts = append(contexts, evalengine.SymbolContext{
			Symbol: e.Symbol, Row: row, Priority: e.Priority, Sector: e.Sector,
		})
	}
	if len(contexts) == 0 {
		log.Warn().Strs("symbols", symbols).Msg("queryapi: no requested symbols found in enabled universe")
	}
	return contexts, nil
}
