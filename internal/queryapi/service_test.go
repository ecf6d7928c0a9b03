package queryapi

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/chain"
	"github.com/chakraops/chakraops/internal/config"
	"github.com/chakraops/chakraops/internal/coreerrors"
	"github.com/chakraops/chakraops/internal/decisionstore"
	"github.com/chakraops/chakraops/internal/evalengine"
	"github.com/chakraops/chakraops/internal/freezeguard"
	"github.com/chakraops/chakraops/internal/gatekeeper"
	"github.com/chakraops/chakraops/internal/heartbeat"
	"github.com/chakraops/chakraops/internal/marketclock"
	"github.com/chakraops/chakraops/internal/regime"
	"github.com/chakraops/chakraops/internal/storepg"
)

type fakeProvider struct {
	contracts map[string][]chain.Contract
}

func (f *fakeProvider) FetchChain(ctx context.Context, symbol string) ([]chain.Contract, error) {
	return f.contracts[symbol], nil
}

func testFilters() chain.Filters {
	return chain.Filters{MinDTE: 1, MaxDTE: 365, MinDelta: -0.9, MaxDelta: -0.01, MinOpenInt: 1, MinBid: 0.01, MaxSpread: 1000}
}

func testClock(t *testing.T) *marketclock.Clock {
	t.Helper()
	c, err := marketclock.NewClock("America/New_York")
	require.NoError(t, err)
	return c
}

// tuesdayAt returns a fixed Tuesday instant in America/New_York.
func tuesdayAt(t *testing.T, hour int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, time.January, 6, hour, 0, 0, 0, loc)
}

func newTestService(t *testing.T) (*service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	sqlxDB := sqlx.NewDb(mockDB, "postgres")

	repos := &storepg.Repos{
		Universe: storepg.NewUniverseRepo(sqlxDB, 5*time.Second),
		Snapshot: storepg.NewSnapshotRepo(sqlxDB, 5*time.Second),
		Regime:   storepg.NewRegimeRepo(sqlxDB, 5*time.Second),
	}

	dir := t.TempDir()
	clock := testClock(t)
	store, err := decisionstore.New(dir, clock)
	require.NoError(t, err)

	gates := gatekeeper.NewEvaluator(config.DefaultGatesConfig())
	provider := &fakeProvider{contracts: map[string][]chain.Contract{}}
	engine := evalengine.NewEngine(gates, provider, testFilters(), []string{"RISK_ON"}, 1_000_000)

	detector := regime.NewDetector(regime.DefaultThresholds())
	worker := heartbeat.NewWorker(heartbeat.Config{BenchmarkSymbol: "SPY", RegimeStaleThreshold: time.Hour}, repos, engine, store, clock, detector)

	gate := freezeguard.NewMarketHoursGate(clock)

	svc := &service{store: store, engine: engine, repos: repos, worker: worker, clock: clock, gate: gate, nowFn: time.Now}
	return svc, mock
}

func TestService_GetActiveDecision_UsesSuppliedPhase(t *testing.T) {
	svc, _ := newTestService(t)
	path := svc.GetActiveDecision(marketclock.PhaseOpen)
	assert.Contains(t, path, "decision_latest.json")
}

func TestService_EvaluateUniverse_ConflictWhenClosedNoForce(t *testing.T) {
	svc, mock := newTestService(t)
	svc.nowFn = func() time.Time { return tuesdayAt(t, 22) } // market closed

	_, err := svc.EvaluateUniverse(context.Background(), []string{"SPY"}, "LIVE", false, false)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindFreezeViolation))
	// The gate rejects before any repository call is made.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_EvaluateUniverse_ForceBypassesClosedMarket(t *testing.T) {
	svc, mock := newTestService(t)
	svc.nowFn = func() time.Time { return tuesdayAt(t, 22) } // market closed

	mock.ExpectQuery(`SELECT symbol, enabled, notes, priority, sector, updated_at`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "enabled", "notes", "priority", "sector", "updated_at"}).
			AddRow("SPY", true, "", 1, "", time.Now()))
	mock.ExpectQuery(`SELECT snapshot_id FROM snapshot_metadata\s+ORDER BY snapshot_timestamp DESC LIMIT 1`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, regime, detected_at, signals, stable`).
		WillReturnError(sql.ErrNoRows)

	artifact, err := svc.EvaluateUniverse(context.Background(), []string{"SPY"}, "MOCK", true, false)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, 1, artifact.Metadata.UniverseSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_EvaluateSingleSymbolAndMerge_NoLatestArtifactIsStoreError(t *testing.T) {
	svc, _ := newTestService(t)
	svc.nowFn = func() time.Time { return tuesdayAt(t, 10) } // market open, gate is a no-op

	_, err := svc.EvaluateSingleSymbolAndMerge(context.Background(), "AAPL", "MOCK", false, false)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStore))
}

func TestService_RunSchedulerOnce_RefusesWhenClosedNoForce(t *testing.T) {
	svc, _ := newTestService(t)
	svc.nowFn = func() time.Time { return tuesdayAt(t, 22) }

	result := svc.RunSchedulerOnce(context.Background(), false, false)
	assert.False(t, result.Started)
	assert.NotEmpty(t, result.Reason)
}

func TestService_GetSchedulerHealth_ReflectsWorkerHealth(t *testing.T) {
	svc, _ := newTestService(t)
	health := svc.GetSchedulerHealth()
	assert.False(t, health.IsRunning)
	assert.Empty(t, health.Status)
}

func TestService_GetMarketPhase_DelegatesToClock(t *testing.T) {
	svc, _ := newTestService(t)
	phase := svc.GetMarketPhase(tuesdayAt(t, 10))
	assert.Equal(t, marketclock.PhaseOpen, phase)
}

func TestService_GetLatestArtifact_NilWhenNoneWritten(t *testing.T) {
	svc, _ := newTestService(t)
	artifact, err := svc.GetLatestArtifact()
	require.NoError(t, err)
	assert.Nil(t, artifact)
}
