package evalengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/chain"
	"github.com/chakraops/chakraops/internal/gatekeeper"
	"github.com/chakraops/chakraops/internal/snapshot"
)

// SymbolContext is the per-symbol input the engine needs for one
// universe symbol: its snapshot row and universe metadata. The regime
// is passed to Run/MergeSymbol separately.
type SymbolContext struct {
	Symbol   string
	Row      snapshot.Row
	Priority int
	Sector   string
}

// Engine runs the two-stage pipeline over a universe and assembles a
// DecisionArtifactV2 (spec.md §4.2). Grounded directly on spec.md §4.2's
// pipeline description; run/snapshot IDs via github.com/google/uuid
// (teacher go.mod), structured warnings via github.com/rs/zerolog/log
// (teacher's logging idiom throughout internal/*).
type Engine struct {
	gates            *gatekeeper.Evaluator
	provider         chain.Provider
	filters          chain.Filters
	preferredRegimes []string
	minVolume        float64
}

// NewEngine constructs an Engine.
func NewEngine(gates *gatekeeper.Evaluator, provider chain.Provider, filters chain.Filters, preferredRegimes []string, minVolume float64) *Engine {
	return &Engine{gates: gates, provider: provider, filters: filters, preferredRegimes: preferredRegimes, minVolume: minVolume}
}

// Run evaluates every SymbolContext in universe against the given
// regime, using each context's Row as supplied (callers build the
// has_data=false placeholder rows for symbols missing from the
// snapshot, per spec.md §3.2 invariant 3), and assembles a complete
// DecisionArtifactV2.
// mode is "LIVE" or "MOCK" (spec.md §3.1 metadata.mode).
func (e *Engine) Run(ctx context.Context, universe []SymbolContext, regime string, marketPhase string, mode string) *Artifact {
	runID := uuid.NewString()
	now := time.Now()

	artifact := &Artifact{
		Metadata: ArtifactMetadata{
			ArtifactVersion: "v2",
			Mode:            mode,
			RunID:           runID,
			PipelineTimestamp: now,
			MarketPhase:     marketPhase,
			UniverseSize:    len(universe),
			ConfigFrozen:    true,
		},
		CandidatesBySymbol:  make(map[string][]chain.Candidate),
		GatesBySymbol:       make(map[string][]gatekeeper.GateEvaluation),
		DiagnosticsBySymbol: make(map[string]gatekeeper.ScoreBreakdown),
	}

	for _, sc := range universe {
		summary := e.evaluateOne(ctx, sc, regime, artifact, now)
		artifact.Symbols = append(artifact.Symbols, summary)
		if summary.Stage1Status == StagePass {
			artifact.Metadata.EvaluatedCountStage1++
		}
		if summary.Stage2Status != StageNotRun {
			artifact.Metadata.EvaluatedCountStage2++
		}
		if summary.Verdict == VerdictEligible {
			artifact.Metadata.EligibleCount++
		}
	}

	sortSymbols(artifact.Symbols)
	artifact.SelectedCandidates = collectSelectedCandidates(artifact.Symbols, artifact.CandidatesBySymbol)

	return artifact
}

// evaluateOne runs Stage 1 then (if it passes) Stage 2 for one symbol.
// Any panic inside gate evaluation or chain selection is recovered and
// downgrades the symbol to NOT_EVALUATED with an artifact-level warning
// (spec.md §4.2 "Failure semantics").
func (e *Engine) evaluateOne(ctx context.Context, sc SymbolContext, regime string, artifact *Artifact, now time.Time) (result SymbolEvalSummary) {
	result = SymbolEvalSummary{Symbol: sc.Symbol, Verdict: VerdictNotEvaluated, Stage1Status: StageNotRun, Stage2Status: StageNotRun}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("symbol %s: evaluation panicked: %v", sc.Symbol, r)
			log.Error().Str("symbol", sc.Symbol).Interface("panic", r).Msg("evaluation engine recovered")
			artifact.Warnings = append(artifact.Warnings, msg)
			result = SymbolEvalSummary{Symbol: sc.Symbol, Verdict: VerdictNotEvaluated, Band: gatekeeper.BandD, BandReason: "no score: not evaluated", Stage1Status: StageNotRun, Stage2Status: StageNotRun}
		}
	}()

	gates, passed := e.gates.Evaluate(gatekeeper.Input{Symbol: sc.Symbol, Row: sc.Row, Regime: regime, Sector: sc.Sector})
	artifact.GatesBySymbol[sc.Symbol] = gates

	if !passed {
		reason := ""
		if len(gates) > 0 {
			reason = gates[len(gates)-1].Reason
		}
		band, bandReason := gatekeeper.DeriveBand(nil)
		return SymbolEvalSummary{
			Symbol: sc.Symbol, Verdict: VerdictBlocked,
			Band: band, BandReason: bandReason,
			Stage1Status: StageFail, Stage2Status: StageNotRun,
			PrimaryReason: reason, Price: sc.Row.Close,
		}
	}

	breakdown := gatekeeper.Score(gatekeeper.ScoreInput{
		Price: sc.Row.Close, Regime: regime, PreferredRegimes: e.preferredRegimes,
		Priority: sc.Priority, DataAgeMinutes: now.Sub(sc.Row.Date).Minutes(), IVRank: sc.Row.IVRank,
		Volume: sc.Row.Volume, MinVolume: e.minVolume,
	})
	artifact.DiagnosticsBySymbol[sc.Symbol] = breakdown
	finalScore := breakdown.FinalScore
	band, bandReason := gatekeeper.DeriveBand(&finalScore)

	summary := SymbolEvalSummary{
		Symbol: sc.Symbol, Score: &finalScore, RawScore: breakdown.RawScore, FinalScore: finalScore,
		Band: band, BandReason: bandReason, Stage1Status: StagePass, Price: sc.Row.Close,
	}

	contracts, err := e.provider.FetchChain(ctx, sc.Symbol)
	if err != nil {
		summary.Verdict = VerdictHold
		summary.Stage2Status = StageFail
		summary.PrimaryReason = err.Error()
		summary.ProviderStatus = "FAIL"
		return summary
	}

	sel := chain.Select(sc.Symbol, contracts, now, e.filters)
	artifact.CandidatesBySymbol[sc.Symbol] = sel.Candidates

	if sel.Status != "PASS" || sel.Selected == nil {
		summary.Verdict = VerdictHold
		summary.Stage2Status = StageFail
		summary.PrimaryReason = sel.Reason
		return summary
	}

	summary.Verdict = VerdictEligible
	summary.Stage2Status = StagePass
	summary.Strategy = sel.Selected.Contract.Strategy
	exp := sel.Selected.Contract.Expiry
	summary.Expiration = &exp
	summary.CapitalRequired = sel.Selected.MaxLoss
	summary.ExpectedCredit = sel.Selected.CreditEstimate
	summary.PremiumYieldPct = sel.Selected.PremiumYield * 100
	summary.RankScore = float64(sel.Selected.Score)
	return summary
}

// MergeSymbol evaluates one symbol and merges the result into artifact,
// replacing its row and candidates, bumping run_id/pipeline_timestamp,
// and recomputing eligible_count (spec.md §4.2 "Single-symbol merge").
// Every other symbol's row is left untouched.
func (e *Engine) MergeSymbol(ctx context.Context, artifact *Artifact, sc SymbolContext, regime string) *Artifact {
	now := time.Now()
	delete(artifact.CandidatesBySymbol, sc.Symbol)
	delete(artifact.DiagnosticsBySymbol, sc.Symbol)
	updated := e.evaluateOne(ctx, sc, regime, artifact, now)

	replaced := false
	for i, s := range artifact.Symbols {
		if s.Symbol == sc.Symbol {
			artifact.Symbols[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		artifact.Symbols = append(artifact.Symbols, updated)
	}

	sortSymbols(artifact.Symbols)
	artifact.SelectedCandidates = collectSelectedCandidates(artifact.Symbols, artifact.CandidatesBySymbol)

	artifact.Metadata.RunID = uuid.NewString()
	artifact.Metadata.PipelineTimestamp = now
	artifact.Metadata.EligibleCount = 0
	for _, s := range artifact.Symbols {
		if s.Verdict == VerdictEligible {
			artifact.Metadata.EligibleCount++
		}
	}
	return artifact
}

// bandRank orders bands A(best)..D(worst) for the tie-break tuple.
func bandRank(b gatekeeper.Band) int {
	switch b {
	case gatekeeper.BandA:
		return 0
	case gatekeeper.BandB:
		return 1
	case gatekeeper.BandC:
		return 2
	default:
		return 3
	}
}

// sortSymbols applies the deterministic tie-break tuple (spec.md §4.2
// "Determinism"): band A→D, score descending, premium-yield descending,
// symbol ascending.
func sortSymbols(symbols []SymbolEvalSummary) {
	sort.SliceStable(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if bandRank(a.Band) != bandRank(b.Band) {
			return bandRank(a.Band) < bandRank(b.Band)
		}
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.PremiumYieldPct != b.PremiumYieldPct {
			return a.PremiumYieldPct > b.PremiumYieldPct
		}
		return a.Symbol < b.Symbol
	})
}

// collectSelectedCandidates builds selected_candidates (spec.md §3.2
// invariant 6: at most one per symbol), ordered to match Symbols.
func collectSelectedCandidates(symbols []SymbolEvalSummary, candidatesBySymbol map[string][]chain.Candidate) []CandidateRow {
	var out []CandidateRow
	for _, s := range symbols {
		if s.Verdict != VerdictEligible {
			continue
		}
		for _, c := range candidatesBySymbol[s.Symbol] {
			if c.Rejected {
				continue
			}
			if s.Strategy != "" && c.Contract.Strategy != s.Strategy {
				continue
			}
			if s.Expiration != nil && !c.Contract.Expiry.Equal(*s.Expiration) {
				continue
			}
			out = append(out, CandidateRow{
				Symbol: s.Symbol, Strategy: c.Contract.Strategy, Expiry: c.Contract.Expiry,
				Strike: c.Contract.Strike, Delta: c.Contract.Delta,
				CreditEstimate: c.CreditEstimate, MaxLoss: c.MaxLoss,
				ContractKey: fmt.Sprintf("%.2f-%s-P", c.Contract.Strike, c.Contract.Expiry.Format("2006-01-02")),
			})
			break
		}
	}
	return out
}

// NotEvaluated builds a placeholder summary for a universe symbol that
// the engine never ran for (spec.md §3.2 invariant 4: artifact
// completeness, band='D').
func NotEvaluated(symbol string) SymbolEvalSummary {
	band, reason := gatekeeper.DeriveBand(nil)
	return SymbolEvalSummary{Symbol: symbol, Verdict: VerdictNotEvaluated, Band: band, BandReason: reason, Stage1Status: StageNotRun, Stage2Status: StageNotRun}
}
