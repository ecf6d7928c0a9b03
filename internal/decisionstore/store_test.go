package decisionstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/evalengine"
	"github.com/chakraops/chakraops/internal/marketclock"
)

func testClock(t *testing.T) *marketclock.Clock {
	t.Helper()
	c, err := marketclock.NewClock("America/New_York")
	require.NoError(t, err)
	return c
}

func TestStore_SetLatest_WritesLatestAndHistory(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)

	artifact := &evalengine.Artifact{Metadata: evalengine.ArtifactMetadata{RunID: "run-1", ArtifactVersion: "v2"}}
	require.NoError(t, s.SetLatest(artifact))

	assert.FileExists(t, filepath.Join(dir, "decision_latest.json"))
	assert.FileExists(t, filepath.Join(dir, "history", "decision_run-1.json"))
}

func TestStore_GetLatest_ReturnsNilWhenMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)

	artifact, err := s.GetLatest()
	require.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestStore_GetLatest_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)

	original := &evalengine.Artifact{
		Metadata: evalengine.ArtifactMetadata{RunID: "run-2", UniverseSize: 3},
		Symbols:  []evalengine.SymbolEvalSummary{{Symbol: "AAPL", Verdict: evalengine.VerdictEligible}},
	}
	require.NoError(t, s.SetLatest(original))

	got, err := s.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-2", got.Metadata.RunID)
	assert.Equal(t, 3, got.Metadata.UniverseSize)
}

func TestStore_GetByRun_FiltersBySymbolPresence(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)

	artifact := &evalengine.Artifact{
		Metadata: evalengine.ArtifactMetadata{RunID: "run-3"},
		Symbols:  []evalengine.SymbolEvalSummary{{Symbol: "AAPL"}},
	}
	require.NoError(t, s.SetLatest(artifact))

	found, err := s.GetByRun("AAPL", "run-3")
	require.NoError(t, err)
	assert.NotNil(t, found)

	notFound, err := s.GetByRun("MSFT", "run-3")
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestStore_ActivePath_PrefersFrozenWhenMarketClosed(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	require.NoError(t, err)

	latest := &evalengine.Artifact{Metadata: evalengine.ArtifactMetadata{RunID: "run-4"}}
	require.NoError(t, s.SetLatest(latest))
	require.NoError(t, s.Freeze())

	assert.Equal(t, filepath.Join(dir, "decision_frozen.json"), s.ActivePath())
}

func TestStore_ActivePath_FallsBackToLatestWhenNoFrozenFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "decision_latest.json"), s.ActivePath())
}

func TestStore_Freeze_FailsWithoutLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)
	err = s.Freeze()
	assert.Error(t, err)
}

func TestStore_GetSymbol_ReturnsNilForUnknownSymbol(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, testClock(t))
	require.NoError(t, err)

	artifact := &evalengine.Artifact{
		Metadata: evalengine.ArtifactMetadata{RunID: "run-5"},
		Symbols:  []evalengine.SymbolEvalSummary{{Symbol: "AAPL"}},
	}
	require.NoError(t, s.SetLatest(artifact))

	view, err := s.GetSymbol("NOPE")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestStore_New_CreatesHistoryDir(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, testClock(t))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "history"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
