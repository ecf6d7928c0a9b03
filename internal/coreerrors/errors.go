// Package coreerrors defines the typed error taxonomy shared across
// ChakraOps components (spec.md §7). Every error raised at a component
// boundary is one of these kinds, wrapping its cause with %w.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a core error for callers that need to branch on it
// (e.g. the scheduler deciding whether to continue a cycle).
type Kind string

const (
	KindConfig          Kind = "CONFIG"
	KindSnapshotSource  Kind = "SNAPSHOT_SOURCE"
	KindSnapshotBuild   Kind = "SNAPSHOT_BUILD"
	KindEvaluation      Kind = "EVALUATION"
	KindProvider        Kind = "PROVIDER"
	KindStore           Kind = "STORE"
	KindFreezeViolation Kind = "FREEZE_VIOLATION"
	KindLifecycle       Kind = "LIFECYCLE"
)

// CoreError is the common shape for every typed error at a component
// boundary. Symbol is set for per-symbol errors (EvaluationError,
// ProviderError) and empty otherwise.
type CoreError struct {
	Kind   Kind
	Symbol string
	Msg    string
	Cause  error
}

func (e *CoreError) Error() string {
	if e.Symbol != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Symbol, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Symbol, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CoreError) Unwrap() error { return e.Cause }

func new_(kind Kind, msg string, cause error) *CoreError {
	return &CoreError{Kind: kind, Msg: msg, Cause: cause}
}

func Config(msg string, cause error) error          { return new_(KindConfig, msg, cause) }
func SnapshotSource(msg string, cause error) error   { return new_(KindSnapshotSource, msg, cause) }
func SnapshotBuild(msg string, cause error) error    { return new_(KindSnapshotBuild, msg, cause) }
func Store(msg string, cause error) error            { return new_(KindStore, msg, cause) }
func Lifecycle(msg string, cause error) error        { return new_(KindLifecycle, msg, cause) }

// Evaluation returns a per-symbol evaluation error; the caller records
// it on that symbol's summary and continues the run.
func Evaluation(symbol, msg string, cause error) error {
	return &CoreError{Kind: KindEvaluation, Symbol: symbol, Msg: msg, Cause: cause}
}

// Provider returns a per-symbol chain-provider error (Stage 2).
func Provider(symbol, msg string, cause error) error {
	return &CoreError{Kind: KindProvider, Symbol: symbol, Msg: msg, Cause: cause}
}

// FreezeViolation signals a market-closed overwrite attempt without force.
func FreezeViolation(msg string) error {
	return &CoreError{Kind: KindFreezeViolation, Msg: msg}
}

// Is reports whether err is a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
