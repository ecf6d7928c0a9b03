package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_FetchChain_ReturnsLadderBelowPrice(t *testing.T) {
	m := NewMockProvider(map[string]float64{"AAPL": 200})
	contracts, err := m.FetchChain(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, contracts, 9) // 3 expiries x 3 strikes

	for _, c := range contracts {
		assert.Less(t, c.Strike, 200.0)
		assert.GreaterOrEqual(t, c.Delta, -0.45)
		assert.LessOrEqual(t, c.Delta, -0.15)
	}
}

func TestMockProvider_FetchChain_UnknownSymbolReturnsEmpty(t *testing.T) {
	m := NewMockProvider(map[string]float64{"AAPL": 200})
	contracts, err := m.FetchChain(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestMockProvider_FetchChain_IsDeterministicAcrossCalls(t *testing.T) {
	m := NewMockProvider(map[string]float64{"AAPL": 200})
	first, err := m.FetchChain(context.Background(), "AAPL")
	require.NoError(t, err)
	second, err := m.FetchChain(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
