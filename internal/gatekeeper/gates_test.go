package gatekeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/config"
	"github.com/chakraops/chakraops/internal/snapshot"
)

func testGatesConfig() *config.GatesConfig {
	return config.DefaultGatesConfig()
}

func TestEvaluator_Evaluate_AllGatesPass(t *testing.T) {
	e := NewEvaluator(testGatesConfig())
	iv := 45.0
	evals, passed := e.Evaluate(Input{
		Symbol: "AAPL",
		Row:    snapshot.Row{Close: 150, Volume: 2_000_000, IVRank: &iv, HasData: true},
		Regime: "RISK_ON",
	})
	require.True(t, passed)
	assert.Len(t, evals, 6)
	for _, ev := range evals {
		assert.Equal(t, GateStatusPass, ev.Status)
	}
}

func TestEvaluator_Evaluate_ShortCircuitsOnPresence(t *testing.T) {
	e := NewEvaluator(testGatesConfig())
	evals, passed := e.Evaluate(Input{
		Symbol: "AAPL",
		Row:    snapshot.Row{HasData: false},
		Regime: "RISK_ON",
	})
	require.False(t, passed)
	require.Len(t, evals, 1)
	assert.Equal(t, "PRESENCE", evals[0].Name)
	assert.Equal(t, GateStatusFail, evals[0].Status)
}

func TestEvaluator_Evaluate_FailsOnWrongRegime(t *testing.T) {
	e := NewEvaluator(testGatesConfig())
	iv := 45.0
	evals, passed := e.Evaluate(Input{
		Row:    snapshot.Row{Close: 150, Volume: 2_000_000, IVRank: &iv, HasData: true},
		Regime: "RISK_OFF",
	})
	require.False(t, passed)
	last := evals[len(evals)-1]
	assert.Equal(t, "REGIME", last.Name)
	assert.Equal(t, GateStatusFail, last.Status)
}

func TestEvaluator_Evaluate_IVFloorSkippedWhenAbsentAndAllowed(t *testing.T) {
	e := NewEvaluator(testGatesConfig())
	evals, passed := e.Evaluate(Input{
		Row:    snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true},
		Regime: "RISK_ON",
	})
	require.True(t, passed)
	last := evals[len(evals)-1]
	assert.Equal(t, "IV_FLOOR", last.Name)
	assert.Equal(t, GateStatusSkip, last.Status)
}

func TestEvaluator_Evaluate_PriceOutOfRangeFails(t *testing.T) {
	e := NewEvaluator(testGatesConfig())
	evals, passed := e.Evaluate(Input{
		Row:    snapshot.Row{Close: 5000, Volume: 2_000_000, HasData: true},
		Regime: "RISK_ON",
	})
	require.False(t, passed)
	last := evals[len(evals)-1]
	assert.Equal(t, "PRICE_RANGE", last.Name)
}

func TestEvaluator_Evaluate_SectorOverrideAppliesToLiquidity(t *testing.T) {
	cfg := testGatesConfig()
	cfg.Sectors = map[string]config.SectorOverride{"TECH": {MinVolume: 10_000_000}}

	e := NewEvaluator(cfg)
	evals, passed := e.Evaluate(Input{
		Row:    snapshot.Row{Close: 150, Volume: 2_000_000, HasData: true},
		Regime: "RISK_ON",
		Sector: "TECH",
	})
	require.False(t, passed)
	last := evals[len(evals)-1]
	assert.Equal(t, "LIQUIDITY_UNDERLYING", last.Name)
}
