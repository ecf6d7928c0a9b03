package gatekeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceSuitability_PeakInsideBand(t *testing.T) {
	assert.Equal(t, 100.0, priceSuitability(30))
	assert.Equal(t, 100.0, priceSuitability(150))
	assert.Equal(t, 100.0, priceSuitability(300))
}

func TestPriceSuitability_TapersOutsideBand(t *testing.T) {
	below := priceSuitability(10)
	above := priceSuitability(400)
	assert.Less(t, below, 100.0)
	assert.Less(t, above, 100.0)
	assert.GreaterOrEqual(t, below, 0.0)
	assert.GreaterOrEqual(t, above, 0.0)
}

func TestFreshness_Tiers(t *testing.T) {
	assert.Equal(t, 100.0, freshness(0))
	assert.Equal(t, 100.0, freshness(60))
	assert.Equal(t, 50.0, freshness(61))
	assert.Equal(t, 50.0, freshness(360))
	assert.Equal(t, 0.0, freshness(361))
}

func TestRegimeFit_MatchVsMismatch(t *testing.T) {
	assert.Equal(t, 100.0, regimeFit("RISK_ON", []string{"RISK_ON", "BULL"}))
	assert.Equal(t, 40.0, regimeFit("RISK_OFF", []string{"RISK_ON", "BULL"}))
}

func TestIVRankBonus_Tiers(t *testing.T) {
	assert.Equal(t, 0.0, ivRankBonus(nil))
	low := 10.0
	assert.Equal(t, 0.0, ivRankBonus(&low))
	mid := 35.0
	assert.Equal(t, 30.0, ivRankBonus(&mid))
	high := 55.0
	assert.Equal(t, 60.0, ivRankBonus(&high))
	top := 80.0
	assert.Equal(t, 100.0, ivRankBonus(&top))
}

func TestLiquidityBonus_Tiers(t *testing.T) {
	assert.Equal(t, 0.0, liquidityBonus(500_000, 1_000_000))
	assert.Equal(t, 20.0, liquidityBonus(1_500_000, 1_000_000))
	assert.Equal(t, 50.0, liquidityBonus(2_500_000, 1_000_000))
	assert.Equal(t, 100.0, liquidityBonus(6_000_000, 1_000_000))
}

func TestUniversePriority_DefaultWhenUnset(t *testing.T) {
	assert.Equal(t, 50.0, universePriority(0))
	assert.Greater(t, universePriority(3), universePriority(0))
}

func TestScore_ClampsAndRounds(t *testing.T) {
	iv := 80.0
	b := Score(ScoreInput{
		Price:            150,
		Regime:           "RISK_ON",
		PreferredRegimes: []string{"RISK_ON"},
		Priority:         2,
		DataAgeMinutes:   10,
		IVRank:           &iv,
		Volume:           6_000_000,
		MinVolume:        1_000_000,
	})
	assert.GreaterOrEqual(t, b.FinalScore, 0)
	assert.LessOrEqual(t, b.FinalScore, 100)
	assert.Equal(t, 100.0, b.PriceSuitability)
	assert.Equal(t, 100.0, b.RegimeFit)
	assert.Equal(t, 100.0, b.Freshness)
	assert.Equal(t, 100.0, b.IVRankBonus)
	assert.Equal(t, 100.0, b.LiquidityBonus)
}

func TestClampRound(t *testing.T) {
	assert.Equal(t, 0, clampRound(-10))
	assert.Equal(t, 100, clampRound(150))
	assert.Equal(t, 50, clampRound(49.6))
}
