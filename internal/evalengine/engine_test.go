package evalengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/chain"
	"github.com/chakraops/chakraops/internal/config"
	"github.com/chakraops/chakraops/internal/gatekeeper"
	"github.com/chakraops/chakraops/internal/snapshot"
)

type fakeProvider struct {
	contracts map[string][]chain.Contract
	err       error
}

func (f *fakeProvider) FetchChain(ctx context.Context, symbol string) ([]chain.Contract, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contracts[symbol], nil
}

func testFilters() chain.Filters {
	return chain.Filters{MinDTE: 1, MaxDTE: 365, MinDelta: -0.9, MaxDelta: -0.01, MinOpenInt: 1, MinBid: 0.01, MaxSpread: 1000}
}

func TestEngine_Run_ArtifactCompletenessMatchesUniverseSize(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{contracts: map[string][]chain.Contract{}}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{
		{Symbol: "AAPL", Row: snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true}},
		{Symbol: "MSFT", Row: snapshot.Row{HasData: false}},
	}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	assert.Len(t, artifact.Symbols, 2)
	assert.Equal(t, 2, artifact.Metadata.UniverseSize)
}

func TestEngine_Run_BlockedOnHardGateFailure(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{{Symbol: "MSFT", Row: snapshot.Row{HasData: false}}}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	require.Len(t, artifact.Symbols, 1)
	assert.Equal(t, VerdictBlocked, artifact.Symbols[0].Verdict)
	assert.Equal(t, StageFail, artifact.Symbols[0].Stage1Status)
	assert.Equal(t, StageNotRun, artifact.Symbols[0].Stage2Status)
}

func TestEngine_Run_HoldWhenNoContractSurvives(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{contracts: map[string][]chain.Contract{}}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{{Symbol: "AAPL", Row: snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true}}}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	require.Len(t, artifact.Symbols, 1)
	assert.Equal(t, VerdictHold, artifact.Symbols[0].Verdict)
	assert.Equal(t, StagePass, artifact.Symbols[0].Stage1Status)
	assert.Equal(t, StageFail, artifact.Symbols[0].Stage2Status)
}

func TestEngine_Run_EligibleWhenContractSelected(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{contracts: map[string][]chain.Contract{
		"AAPL": {{Symbol: "AAPL", Strategy: "CSP", Strike: 140, Delta: -0.3, OpenInterest: 500, Bid: 2, Ask: 2.1, Expiry: futureExpiry(30)}},
	}}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{{Symbol: "AAPL", Row: snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true}}}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	require.Len(t, artifact.Symbols, 1)
	assert.Equal(t, VerdictEligible, artifact.Symbols[0].Verdict)
	assert.Equal(t, 1, artifact.Metadata.EligibleCount)
	require.Len(t, artifact.SelectedCandidates, 1)
	assert.Equal(t, "AAPL", artifact.SelectedCandidates[0].Symbol)
}

func TestEngine_Run_HoldOnProviderError(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{err: errors.New("chain API down")}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{{Symbol: "AAPL", Row: snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true}}}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	require.Len(t, artifact.Symbols, 1)
	assert.Equal(t, VerdictHold, artifact.Symbols[0].Verdict)
	assert.Equal(t, StageFail, artifact.Symbols[0].Stage2Status)
}

func TestEngine_MergeSymbol_ReplacesOnlyThatSymbol(t *testing.T) {
	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{contracts: map[string][]chain.Contract{}}
	eng := NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	universe := []SymbolContext{
		{Symbol: "AAPL", Row: snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true}},
		{Symbol: "MSFT", Row: snapshot.Row{HasData: false}},
	}
	artifact := eng.Run(context.Background(), universe, "RISK_ON", "OPEN", "MOCK")
	originalRunID := artifact.Metadata.RunID

	updated := eng.MergeSymbol(context.Background(), artifact, SymbolContext{Symbol: "MSFT", Row: snapshot.Row{Close: 300, Volume: 3_000_000, HasData: true}}, "RISK_ON")
	require.Len(t, updated.Symbols, 2)
	assert.NotEqual(t, originalRunID, updated.Metadata.RunID)

	for _, s := range updated.Symbols {
		if s.Symbol == "MSFT" {
			assert.NotEqual(t, VerdictBlocked, s.Verdict)
		}
	}
}

func TestNotEvaluated_AlwaysBandD(t *testing.T) {
	s := NotEvaluated("ZZZZ")
	assert.Equal(t, VerdictNotEvaluated, s.Verdict)
	assert.Equal(t, gatekeeper.BandD, s.Band)
}

func futureExpiry(days int) time.Time {
	return time.Now().AddDate(0, 0, days)
}
