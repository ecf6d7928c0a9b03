package storepg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockUniverseRepo(t *testing.T) (*UniverseRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return NewUniverseRepo(sqlxDB, 5*time.Second), mock
}

func TestUniverseRepo_Upsert_NormalizesSymbol(t *testing.T) {
	repo, mock := newMockUniverseRepo(t)

	mock.ExpectExec(`INSERT INTO universe`).
		WithArgs("AAPL", true, "core holding", 1, "TECH").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), UniverseEntry{
		Symbol: "  aapl ", Enabled: true, Notes: "core holding", Priority: 1, Sector: "TECH",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniverseRepo_Upsert_RejectsEmptyNormalizedSymbol(t *testing.T) {
	repo, _ := newMockUniverseRepo(t)

	err := repo.Upsert(context.Background(), UniverseEntry{Symbol: "   "})
	require.Error(t, err)
}

func TestUniverseRepo_UpsertEnabled_DedupsAndNormalizes(t *testing.T) {
	repo, mock := newMockUniverseRepo(t)

	mock.ExpectExec(`INSERT INTO universe \(symbol, enabled, updated_at\)`).
		WithArgs("AAPL").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO universe \(symbol, enabled, updated_at\)`).
		WithArgs("MSFT").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertEnabled(context.Background(), []string{" aapl", "MSFT", "aapl"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniverseRepo_Enabled_OrdersByPriorityThenSymbol(t *testing.T) {
	repo, mock := newMockUniverseRepo(t)

	mock.ExpectQuery(`SELECT .* FROM universe\s+WHERE enabled = true\s+ORDER BY priority DESC, symbol ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "enabled", "notes", "priority", "sector", "updated_at"}).
			AddRow("MSFT", true, "", 2, "TECH", time.Now()).
			AddRow("AAPL", true, "", 2, "TECH", time.Now()))

	entries, err := repo.Enabled(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
