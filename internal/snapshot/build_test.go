package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/chakraops/chakraops/internal/storepg"
)

func newTestRepos(t *testing.T) (*storepg.Repos, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	repos := &storepg.Repos{
		Universe: storepg.NewUniverseRepo(sqlxDB, 5*time.Second),
		Snapshot: storepg.NewSnapshotRepo(sqlxDB, 5*time.Second),
		Regime:   storepg.NewRegimeRepo(sqlxDB, 5*time.Second),
		Freeze:   storepg.NewFreezeRepo(sqlxDB, 5*time.Second),
	}
	return repos, mock
}

func TestBuilder_Build_CSVMode_OneRowPerUniverseSymbol(t *testing.T) {
	repos, mock := newTestRepos(t)

	mock.ExpectQuery(`SELECT .* FROM universe`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "enabled", "notes", "priority", "sector", "updated_at"}).
			AddRow("AAPL", true, "", 0, "", time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE snapshot_metadata SET is_frozen = false`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO snapshot_metadata`).WillReturnResult(sqlmock.NewResult(1, 1))
	// AAPL (has data) + SPY + QQQ (placeholders, no data in the CSV fixture)
	mock.ExpectExec(`INSERT INTO snapshot_rows`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO snapshot_rows`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO snapshot_rows`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	csvPath := writeCSV(t, "date,symbol,close,volume\n2026-07-30,AAPL,150.0,2000000\n")
	builder := NewBuilder(repos, csvPath, nil, 0)

	meta, err := builder.Build(context.Background(), ModeCSV)
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, 3, meta.SymbolCount) // AAPL + SPY + QQQ benchmarks
	require.Equal(t, 1, meta.SymbolsWithData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_AutoFallsThroughToCacheWhenCSVAbsent(t *testing.T) {
	repos, mock := newTestRepos(t)

	mock.ExpectQuery(`SELECT .* FROM universe`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "enabled", "notes", "priority", "sector", "updated_at"}))

	builder := NewBuilder(repos, "/nonexistent/path.csv", nil, 0)
	_, err := builder.Build(context.Background(), ModeAuto)
	require.Error(t, err) // no cache configured either, so this is a hard source error
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_ExplicitCSVModeMissingFileIsConfigError(t *testing.T) {
	repos, mock := newTestRepos(t)

	mock.ExpectQuery(`SELECT .* FROM universe`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "enabled", "notes", "priority", "sector", "updated_at"}))

	builder := NewBuilder(repos, "/nonexistent/path.csv", nil, 0)
	_, err := builder.Build(context.Background(), ModeCSV)
	require.Error(t, err)
}
