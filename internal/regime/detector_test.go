package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Detect_BootstrapRuleYieldsNeutral(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 0, 450.0, time.Now())
	assert.Equal(t, Neutral, r.Regime)
	assert.Equal(t, 0.0, r.BenchmarkReturn)
}

func TestDetector_Detect_BullOnStrongPositiveReturn(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 100, 102, time.Now())
	assert.Equal(t, Bull, r.Regime)
}

func TestDetector_Detect_BearOnStrongNegativeReturn(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 100, 98, time.Now())
	assert.Equal(t, Bear, r.Regime)
}

func TestDetector_Detect_RiskOnMildPositive(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 100, 100.5, time.Now())
	assert.Equal(t, RiskOn, r.Regime)
}

func TestDetector_Detect_RiskOffMildNegative(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 100, 99.5, time.Now())
	assert.Equal(t, RiskOff, r.Regime)
}

func TestDetector_Detect_UnknownOnZeroCurrentPrice(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	r := d.Detect("SPY", 100, 0, time.Now())
	assert.Equal(t, Unknown, r.Regime)
}

func TestDetector_History_AccumulatesAcrossCalls(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	d.Detect("SPY", 100, 101, time.Now())
	d.Detect("SPY", 101, 100, time.Now())
	assert.Len(t, d.History(), 2)
}
