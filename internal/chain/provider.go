package chain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/chakraops/chakraops/internal/coreerrors"
)

// Provider fetches the live options chain for one underlying symbol.
type Provider interface {
	FetchChain(ctx context.Context, symbol string) ([]Contract, error)
}

// ResilientProvider wraps a Provider with a per-provider circuit breaker
// and token-bucket rate limiter, grounded on the teacher's
// infra/breakers/breakers.go (gobreaker.Settings/ReadyToTrip shape) and
// internal/net/ratelimit/limiter.go (per-host rate.Limiter).
type ResilientProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewResilientProvider wraps inner with a breaker that trips after 3
// consecutive failures (or a >5% failure rate once 20 requests have been
// observed) and a token bucket limiting to rps requests/sec with the
// given burst.
func NewResilientProvider(name string, inner Provider, rps float64, burst int, callTimeout time.Duration) *ResilientProvider {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &ResilientProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: callTimeout,
	}
}

// FetchChain waits for rate-limiter admission, then executes the
// underlying fetch through the circuit breaker with a per-call timeout.
// Any failure is wrapped as a ProviderError (spec.md §7).
func (p *ResilientProvider) FetchChain(ctx context.Context, symbol string) ([]Contract, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, coreerrors.Provider(symbol, "rate limiter wait", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.FetchChain(callCtx, symbol)
	})
	if err != nil {
		return nil, coreerrors.Provider(symbol, fmt.Sprintf("chain fetch via %s", p.breaker.Name()), err)
	}
	contracts, _ := result.([]Contract)
	return contracts, nil
}

// Select runs the Stage 2 filter/score/select sequence over a fetched
// chain (spec.md §4.2): filter by DTE/delta/OI/bid/spread, score every
// surviving contract, and pick the best by the deterministic tie-break
// tuple (score descending, premium-yield descending, expiry ascending,
// strike ascending).
func Select(symbol string, contracts []Contract, asOf time.Time, f Filters) Selection {
	if len(contracts) == 0 {
		return Selection{Status: "FAIL", Reason: "chain unavailable: no contracts returned"}
	}

	candidates := make([]Candidate, 0, len(contracts))
	for _, c := range contracts {
		cand := evaluate(c, asOf, f)
		candidates = append(candidates, cand)
	}

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Rejected {
			survivors = append(survivors, c)
		}
	}

	if len(survivors) == 0 {
		return Selection{Candidates: candidates, Status: "FAIL", Reason: "no contract survived Stage 2 filters"}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PremiumYield != b.PremiumYield {
			return a.PremiumYield > b.PremiumYield
		}
		if !a.Contract.Expiry.Equal(b.Contract.Expiry) {
			return a.Contract.Expiry.Before(b.Contract.Expiry)
		}
		return a.Contract.Strike < b.Contract.Strike
	})

	best := survivors[0]
	return Selection{Selected: &best, Candidates: candidates, Status: "PASS"}
}

func evaluate(c Contract, asOf time.Time, f Filters) Candidate {
	cand := Candidate{Contract: c}

	dte := c.DTE(asOf)
	switch {
	case dte < f.MinDTE || dte > f.MaxDTE:
		cand.Rejected = true
		cand.RejectReason = fmt.Sprintf("dte %d outside [%d, %d]", dte, f.MinDTE, f.MaxDTE)
		return cand
	case c.Delta < f.MinDelta || c.Delta > f.MaxDelta:
		cand.Rejected = true
		cand.RejectReason = fmt.Sprintf("delta %.3f outside [%.3f, %.3f]", c.Delta, f.MinDelta, f.MaxDelta)
		return cand
	case c.OpenInterest < f.MinOpenInt:
		cand.Rejected = true
		cand.RejectReason = fmt.Sprintf("open interest %d below minimum %d", c.OpenInterest, f.MinOpenInt)
		return cand
	case c.Bid < f.MinBid:
		cand.Rejected = true
		cand.RejectReason = fmt.Sprintf("bid %.2f below minimum %.2f", c.Bid, f.MinBid)
		return cand
	case c.Spread() > f.MaxSpread:
		cand.Rejected = true
		cand.RejectReason = fmt.Sprintf("spread %.2f above maximum %.2f", c.Spread(), f.MaxSpread)
		return cand
	}

	cand.CreditEstimate = c.Bid * 100
	cand.MaxLoss = (c.Strike - c.Bid) * 100
	if cand.MaxLoss > 0 {
		cand.PremiumYield = cand.CreditEstimate / cand.MaxLoss
	}
	cand.Score = scoreContract(c, cand.PremiumYield)
	return cand
}

// scoreContract is a bounded per-contract quality score: a tighter
// spread relative to the ask and a higher premium yield score higher.
// The delta term is a constant 100, so a contract's delta does not
// change its score.
func scoreContract(c Contract, premiumYield float64) int {
	deltaScore := 100.0
	spreadScore := 100.0
	mid := c.Ask
	if mid > 0 {
		relSpread := c.Spread() / mid
		spreadScore = clamp0to100(100 * (1 - relSpread*5))
	}
	yieldScore := clamp0to100(premiumYield * 1000)
	raw := 0.4*deltaScore + 0.3*spreadScore + 0.3*yieldScore
	return clampRound(raw)
}

func clamp0to100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampRound(v float64) int {
	r := clamp0to100(v)
	return int(r + 0.5)
}
