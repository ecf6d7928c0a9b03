// Package evalengine implements the staged evaluation engine (C2):
// Stage 1 hard gates + scoring (internal/gatekeeper) and Stage 2
// options-chain selection (internal/chain), assembled into a
// DecisionArtifactV2 (spec.md §3.1, §4.2).
package evalengine

import (
	"time"

	"github.com/chakraops/chakraops/internal/chain"
	"github.com/chakraops/chakraops/internal/gatekeeper"
)

// Verdict is the per-symbol outcome (spec.md §3.1 SymbolEvalSummary).
type Verdict string

const (
	VerdictEligible     Verdict = "ELIGIBLE"
	VerdictHold         Verdict = "HOLD"
	VerdictBlocked      Verdict = "BLOCKED"
	VerdictNotEvaluated Verdict = "NOT_EVALUATED"
)

// StageStatus mirrors spec.md's stage1_status/stage2_status domain.
type StageStatus string

const (
	StagePass   StageStatus = "PASS"
	StageFail   StageStatus = "FAIL"
	StageNotRun StageStatus = "NOT_RUN"
)

// CandidateRow is one (symbol, strategy, expiry, strike) contract
// (spec.md §3.1 CandidateRow).
type CandidateRow struct {
	Symbol         string    `json:"symbol"`
	Strategy       string    `json:"strategy"`
	Expiry         time.Time `json:"expiry"`
	Strike         float64   `json:"strike"`
	Delta          float64   `json:"delta"`
	CreditEstimate float64   `json:"credit_estimate"`
	MaxLoss        float64   `json:"max_loss"`
	ContractKey    string    `json:"contract_key"`
	OptionSymbol   string    `json:"option_symbol,omitempty"`
	WhyThisTrade   string    `json:"why_this_trade,omitempty"`
}

// SymbolEvalSummary is one per universe symbol per artifact
// (spec.md §3.1 SymbolEvalSummary).
type SymbolEvalSummary struct {
	Symbol           string  `json:"symbol"`
	Verdict          Verdict `json:"verdict"`
	Score            *int    `json:"score"`
	RawScore         float64 `json:"raw_score"`
	FinalScore       int     `json:"final_score"`
	Band             gatekeeper.Band `json:"band"`
	BandReason       string  `json:"band_reason"`
	Stage1Status     StageStatus `json:"stage1_status"`
	Stage2Status     StageStatus `json:"stage2_status"`
	PrimaryReason    string  `json:"primary_reason,omitempty"`
	ProviderStatus   string  `json:"provider_status,omitempty"`
	Strategy         string  `json:"strategy,omitempty"`
	Price            float64 `json:"price"`
	Expiration       *time.Time `json:"expiration,omitempty"`
	CapitalRequired  float64 `json:"capital_required,omitempty"`
	ExpectedCredit   float64 `json:"expected_credit,omitempty"`
	PremiumYieldPct  float64 `json:"premium_yield_pct,omitempty"`
	RankScore        float64 `json:"rank_score,omitempty"`
}

// ArtifactMetadata is DecisionArtifactV2.metadata (spec.md §3.1).
type ArtifactMetadata struct {
	ArtifactVersion      string    `json:"artifact_version"`
	Mode                 string    `json:"mode"`
	RunID                string    `json:"run_id"`
	PipelineTimestamp    time.Time `json:"pipeline_timestamp"`
	MarketPhase          string    `json:"market_phase"`
	UniverseSize         int       `json:"universe_size"`
	EvaluatedCountStage1 int       `json:"evaluated_count_stage1"`
	EvaluatedCountStage2 int       `json:"evaluated_count_stage2"`
	EligibleCount        int       `json:"eligible_count"`
	ConfigFrozen         bool      `json:"config_frozen"`
}

// Artifact is DecisionArtifactV2 (spec.md §3.1).
type Artifact struct {
	Metadata            ArtifactMetadata                    `json:"metadata"`
	Symbols             []SymbolEvalSummary                  `json:"symbols"`
	SelectedCandidates  []CandidateRow                        `json:"selected_candidates"`
	CandidatesBySymbol  map[string][]chain.Candidate          `json:"candidates_by_symbol"`
	GatesBySymbol       map[string][]gatekeeper.GateEvaluation `json:"gates_by_symbol"`
	DiagnosticsBySymbol map[string]gatekeeper.ScoreBreakdown   `json:"diagnostics_by_symbol"`
	EarningsBySymbol    map[string]string                     `json:"earnings_by_symbol,omitempty"`
	Warnings            []string                              `json:"warnings,omitempty"`
}
