// Package chain implements Stage 2 of the evaluation engine (C2): the
// options-chain provider contract, contract filtering, per-contract
// scoring, and best-contract selection (spec.md §4.2).
package chain

import "time"

// Contract is one option-chain row as returned by a Provider.
type Contract struct {
	Symbol       string
	Strategy     string // "CSP" or "CC"
	Expiry       time.Time
	Strike       float64
	Delta        float64
	OpenInterest int64
	Bid          float64
	Ask          float64
}

// Spread returns the bid/ask spread, always non-negative in well-formed data.
func (c Contract) Spread() float64 {
	return c.Ask - c.Bid
}

// DTE returns days-to-expiry measured from asOf, truncated to whole days.
func (c Contract) DTE(asOf time.Time) int {
	return int(c.Expiry.Sub(asOf).Hours() / 24)
}

// Filters are the Stage 2 hard filters (spec.md §4.2): DTE window, delta
// band, minimum open interest, minimum bid, maximum spread.
type Filters struct {
	MinDTE       int
	MaxDTE       int
	MinDelta     float64
	MaxDelta     float64
	MinOpenInt   int64
	MinBid       float64
	MaxSpread    float64
}

// Candidate is a scored contract considered for selection.
type Candidate struct {
	Contract       Contract
	CreditEstimate float64
	MaxLoss        float64
	PremiumYield   float64
	Score          int
	Rejected       bool
	RejectReason   string
}

// Selection is the Stage 2 outcome for one symbol.
type Selection struct {
	Selected   *Candidate
	Candidates []Candidate
	Status     string // "PASS" or "FAIL"
	Reason     string
}
