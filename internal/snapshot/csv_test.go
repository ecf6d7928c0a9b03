package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCSVReader_LoadFile_ParsesAndNormalizesSymbols(t *testing.T) {
	path := writeCSV(t, "date,symbol,open,high,low,close,volume,iv_rank\n"+
		"2026-07-30,aapl,100,102,99,101.5,5000000,45\n"+
		"2026-07-30,MSFT,300,305,298,302,3000000,\n")

	r := NewCSVReader()
	rows, err := r.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, 101.5, rows[0].Close)
	require.NotNil(t, rows[0].IVRank)
	assert.Equal(t, 45.0, *rows[0].IVRank)
	assert.True(t, rows[0].HasData)

	assert.Equal(t, "MSFT", rows[1].Symbol)
	assert.Nil(t, rows[1].IVRank)
}

func TestCSVReader_LoadFile_AliasedColumnNames(t *testing.T) {
	path := writeCSV(t, "ts,ticker,o,h,l,c,vol\n2026-07-30,spy,400,402,398,401,9000000\n")

	r := NewCSVReader()
	rows, err := r.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SPY", rows[0].Symbol)
	assert.Equal(t, 401.0, rows[0].Close)
}

func TestCSVReader_LoadFile_EmptyFileIsHardFailure(t *testing.T) {
	path := writeCSV(t, "date,symbol,close\n")

	r := NewCSVReader()
	_, err := r.LoadFile(path)
	require.Error(t, err)
}

func TestCSVReader_LoadFile_MissingRequiredColumnFails(t *testing.T) {
	path := writeCSV(t, "date,symbol,volume\n2026-07-30,AAPL,100\n")

	r := NewCSVReader()
	_, err := r.LoadFile(path)
	require.Error(t, err)
}

func TestCSVReader_LoadFile_BadRowIdentifiesLineNumber(t *testing.T) {
	path := writeCSV(t, "date,symbol,close\n2026-07-30,AAPL,100\n2026-07-30,,200\n")

	r := NewCSVReader()
	_, err := r.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
}

func TestCSVReader_ParseTimestamp_FallsBackToUnixSeconds(t *testing.T) {
	r := NewCSVReader()
	ts, err := r.parseTimestamp("1753920000")
	require.NoError(t, err)
	assert.Equal(t, int64(1753920000), ts.Unix())
}
