package freezeguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/marketclock"
)

func testGateClock(t *testing.T) *marketclock.Clock {
	t.Helper()
	c, err := marketclock.NewClock("America/New_York")
	require.NoError(t, err)
	return c
}

func tuesdayAt(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, time.January, 6, hour, minute, 0, 0, loc)
}

func TestMarketHoursGate_CheckOverwrite_AllowedWhenOpen(t *testing.T) {
	gate := NewMarketHoursGate(testGateClock(t))
	decision, err := gate.CheckOverwrite(false, false, tuesdayAt(t, 10, 0))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Forced)
}

func TestMarketHoursGate_CheckOverwrite_ConflictWhenClosedNoFlags(t *testing.T) {
	gate := NewMarketHoursGate(testGateClock(t))
	decision, err := gate.CheckOverwrite(false, false, tuesdayAt(t, 22, 0))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "FreezeViolation")
}

func TestMarketHoursGate_CheckOverwrite_ForceBypassesWhenClosed(t *testing.T) {
	gate := NewMarketHoursGate(testGateClock(t))
	decision, err := gate.CheckOverwrite(true, false, tuesdayAt(t, 22, 0))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Forced)
}

func TestMarketHoursGate_CheckOverwrite_SkipReturnsNotAllowed(t *testing.T) {
	gate := NewMarketHoursGate(testGateClock(t))
	decision, err := gate.CheckOverwrite(false, true, tuesdayAt(t, 22, 0))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "skipped")
}

func TestMarketHoursGate_CheckOverwrite_ForceAndSkipIsError(t *testing.T) {
	gate := NewMarketHoursGate(testGateClock(t))
	_, err := gate.CheckOverwrite(true, true, tuesdayAt(t, 22, 0))
	assert.ErrorIs(t, err, ErrForceAndSkip)
}
