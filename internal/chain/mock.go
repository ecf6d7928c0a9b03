package chain

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"
)

// MockProvider deterministically synthesizes a chain from the
// underlying's price, so tests and local runs don't depend on a live
// brokerage feed. Grounded on the teacher's exchanges/kraken mock.go
// (a deterministic stand-in for a network provider), generalized from
// a canned HTTP response to a programmatic contract generator.
type MockProvider struct {
	Price    map[string]float64
	Expiries []time.Time
	Clock    func() time.Time
}

// NewMockProvider builds a MockProvider with expiries 30/45/60 days out
// from now and the given per-symbol prices.
func NewMockProvider(prices map[string]float64) *MockProvider {
	now := time.Now()
	return &MockProvider{
		Price: prices,
		Expiries: []time.Time{
			now.AddDate(0, 0, 30),
			now.AddDate(0, 0, 45),
			now.AddDate(0, 0, 60),
		},
		Clock: time.Now,
	}
}

// FetchChain returns a small deterministic ladder of cash-secured-put
// strikes below the underlying's price for each configured expiry.
func (m *MockProvider) FetchChain(ctx context.Context, symbol string) ([]Contract, error) {
	price, ok := m.Price[symbol]
	if !ok || price <= 0 {
		return nil, nil
	}

	var contracts []Contract
	strikeFactors := []float64{0.85, 0.90, 0.95}
	for _, expiry := range m.Expiries {
		for _, factor := range strikeFactors {
			strike := roundToNearest(price*factor, 0.5)
			delta := deterministicDelta(symbol, strike, expiry)
			bid := strike * 0.02
			ask := bid * 1.1
			contracts = append(contracts, Contract{
				Symbol:       symbol,
				Strategy:     "CSP",
				Expiry:       expiry,
				Strike:       strike,
				Delta:        delta,
				OpenInterest: 500,
				Bid:          bid,
				Ask:          ask,
			})
		}
	}
	return contracts, nil
}

// deterministicDelta derives a stable pseudo-delta in [-0.45, -0.15] from
// the symbol/strike/expiry tuple, so mock chains are reproducible across
// runs without depending on wall-clock randomness.
func deterministicDelta(symbol string, strike float64, expiry time.Time) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	h.Write([]byte(strconv.FormatFloat(strike, 'f', 2, 64)))
	h.Write([]byte(expiry.Format(time.RFC3339)))
	frac := float64(h.Sum32()%100) / 100.0
	return -(0.15 + frac*0.30)
}

func roundToNearest(v, step float64) float64 {
	return float64(int(v/step+0.5)) * step
}
