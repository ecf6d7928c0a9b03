// Package gatekeeper implements Stage 1 of the evaluation engine (C2):
// the hard gates and scoring that run per symbol against one snapshot
// row and the current market regime (spec.md §4.2).
package gatekeeper

import (
	"fmt"

	"github.com/chakraops/chakraops/internal/config"
	"github.com/chakraops/chakraops/internal/snapshot"
)

// GateStatus mirrors spec.md §3.1 GateEvaluation.status.
type GateStatus string

const (
	GateStatusPass   GateStatus = "PASS"
	GateStatusFail   GateStatus = "FAIL"
	GateStatusSkip   GateStatus = "SKIP"
	GateStatusWaived GateStatus = "WAIVED"
)

// GateEvaluation is one (symbol, gate-name) outcome (spec.md §3.1).
type GateEvaluation struct {
	Name           string     `json:"name"`
	Status         GateStatus `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	MeasuredValue  *float64   `json:"measured_value,omitempty"`
	ThresholdValue *float64   `json:"threshold_value,omitempty"`
}

// Input is everything Stage 1 needs for one symbol.
type Input struct {
	Symbol string
	Row    snapshot.Row
	Regime string
	Sector string
}

// Evaluator runs the ordered hard-gate sequence, grounded on the
// teacher's EntryGateEvaluator (internal/gates/entry.go): same
// GateCheck-per-rule shape, same passed/failed accumulation, adapted
// from an always-evaluate-every-gate pass to spec.md's short-circuit
// rule ("short-circuit on failure; gate-level status recorded").
type Evaluator struct {
	cfg *config.GatesConfig
}

// NewEvaluator constructs an Evaluator against the active gates profile.
func NewEvaluator(cfg *config.GatesConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs PRESENCE, PRICE_VALID, PRICE_RANGE, REGIME,
// LIQUIDITY_UNDERLYING, IV_FLOOR in order, stopping at the first
// failing hard gate. Returns the gate evaluations produced so far and
// whether every evaluated gate passed.
func (e *Evaluator) Evaluate(in Input) ([]GateEvaluation, bool) {
	thresholds := e.cfg.ActiveFor(in.Sector)
	var evals []GateEvaluation

	presence := e.evalPresence(in)
	evals = append(evals, presence)
	if presence.Status == GateStatusFail {
		return evals, false
	}

	priceValid := e.evalPriceValid(in)
	evals = append(evals, priceValid)
	if priceValid.Status == GateStatusFail {
		return evals, false
	}

	priceRange := e.evalPriceRange(in, thresholds)
	evals = append(evals, priceRange)
	if priceRange.Status == GateStatusFail {
		return evals, false
	}

	regime := e.evalRegime(in, thresholds)
	evals = append(evals, regime)
	if regime.Status == GateStatusFail {
		return evals, false
	}

	liquidity := e.evalLiquidity(in, thresholds)
	evals = append(evals, liquidity)
	if liquidity.Status == GateStatusFail {
		return evals, false
	}

	ivFloor := e.evalIVFloor(in, thresholds)
	evals = append(evals, ivFloor)
	if ivFloor.Status == GateStatusFail {
		return evals, false
	}

	return evals, true
}

func ptr(v float64) *float64 { return &v }

func (e *Evaluator) evalPresence(in Input) GateEvaluation {
	if !in.Row.HasData {
		return GateEvaluation{Name: "PRESENCE", Status: GateStatusFail, Reason: "no data row for symbol"}
	}
	return GateEvaluation{Name: "PRESENCE", Status: GateStatusPass}
}

func (e *Evaluator) evalPriceValid(in Input) GateEvaluation {
	if in.Row.Close <= 0 {
		return GateEvaluation{
			Name: "PRICE_VALID", Status: GateStatusFail,
			Reason: fmt.Sprintf("price %.2f is not positive", in.Row.Close),
			MeasuredValue: ptr(in.Row.Close),
		}
	}
	return GateEvaluation{Name: "PRICE_VALID", Status: GateStatusPass, MeasuredValue: ptr(in.Row.Close)}
}

func (e *Evaluator) evalPriceRange(in Input, t config.GateThresholds) GateEvaluation {
	price := in.Row.Close
	if price < t.MinPrice || price > t.MaxPrice {
		return GateEvaluation{
			Name: "PRICE_RANGE", Status: GateStatusFail,
			Reason:         fmt.Sprintf("price %.2f outside [%.2f, %.2f]", price, t.MinPrice, t.MaxPrice),
			MeasuredValue:  ptr(price),
			ThresholdValue: ptr(t.MinPrice),
		}
	}
	return GateEvaluation{Name: "PRICE_RANGE", Status: GateStatusPass, MeasuredValue: ptr(price)}
}

func (e *Evaluator) evalRegime(in Input, t config.GateThresholds) GateEvaluation {
	for _, allowed := range t.AllowedRegimes {
		if in.Regime == allowed {
			return GateEvaluation{Name: "REGIME", Status: GateStatusPass, Reason: in.Regime}
		}
	}
	return GateEvaluation{
		Name: "REGIME", Status: GateStatusFail,
		Reason: fmt.Sprintf("regime %s not in allowed set %v", in.Regime, t.AllowedRegimes),
	}
}

func (e *Evaluator) evalLiquidity(in Input, t config.GateThresholds) GateEvaluation {
	volume := in.Row.Volume
	if volume < t.MinVolume {
		return GateEvaluation{
			Name: "LIQUIDITY_UNDERLYING", Status: GateStatusFail,
			Reason:         fmt.Sprintf("volume %.0f below minimum %.0f", volume, t.MinVolume),
			MeasuredValue:  ptr(volume),
			ThresholdValue: ptr(t.MinVolume),
		}
	}
	return GateEvaluation{Name: "LIQUIDITY_UNDERLYING", Status: GateStatusPass, MeasuredValue: ptr(volume)}
}

func (e *Evaluator) evalIVFloor(in Input, t config.GateThresholds) GateEvaluation {
	if in.Row.IVRank == nil {
		if t.AllowMissingIV {
			return GateEvaluation{Name: "IV_FLOOR", Status: GateStatusSkip, Reason: "iv_rank absent, allowed by config"}
		}
		return GateEvaluation{Name: "IV_FLOOR", Status: GateStatusFail, Reason: "iv_rank absent"}
	}
	if *in.Row.IVRank < t.MinIVRank {
		return GateEvaluation{
			Name: "IV_FLOOR", Status: GateStatusFail,
			Reason:         fmt.Sprintf("iv_rank %.1f below minimum %.1f", *in.Row.IVRank, t.MinIVRank),
			MeasuredValue:  ptr(*in.Row.IVRank),
			ThresholdValue: ptr(t.MinIVRank),
		}
	}
	return GateEvaluation{Name: "IV_FLOOR", Status: GateStatusPass, MeasuredValue: ptr(*in.Row.IVRank)}
}
