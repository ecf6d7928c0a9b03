// Package decisionstore implements the decision store (C3): durable,
// atomically-replaced on-disk storage of the latest DecisionArtifactV2
// plus per-run history (spec.md §4.3).
package decisionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chakraops/chakraops/internal/evalengine"
	"github.com/chakraops/chakraops/internal/marketclock"
)

const (
	latestFileName = "decision_latest.json"
	frozenFileName = "decision_frozen.json"
)

// Store is the on-disk decision store. Grounded on the teacher's
// manifest.IO (internal/artifacts/manifest/io.go): write-temp + fsync +
// rename for the atomic commit point, generalized from a single
// manifest file to spec.md §4.3's latest/frozen/history layout.
type Store struct {
	dir   string
	clock *marketclock.Clock
}

// New constructs a Store rooted at dir, creating the history
// subdirectory if absent.
func New(dir string, clock *marketclock.Clock) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "history"), 0o755); err != nil {
		return nil, fmt.Errorf("decisionstore: create history dir: %w", err)
	}
	return &Store{dir: dir, clock: clock}, nil
}

func (s *Store) latestPath() string { return filepath.Join(s.dir, latestFileName) }
func (s *Store) frozenPath() string { return filepath.Join(s.dir, frozenFileName) }
func (s *Store) historyPath(runID string) string {
	return filepath.Join(s.dir, "history", fmt.Sprintf("decision_%s.json", runID))
}

// SetLatest writes artifact to a temp file, fsyncs, and renames over
// decision_latest.json (the commit point), then copies it into
// history/decision_<run_id>.json (spec.md §4.3 "Operations").
func (s *Store) SetLatest(artifact *evalengine.Artifact) error {
	if err := writeAtomic(s.latestPath(), artifact); err != nil {
		return fmt.Errorf("decisionstore: write latest: %w", err)
	}
	if err := writeAtomic(s.historyPath(artifact.Metadata.RunID), artifact); err != nil {
		return fmt.Errorf("decisionstore: write history for run %s: %w", artifact.Metadata.RunID, err)
	}
	return nil
}

// GetLatest reads the active path (spec.md §4.3 "Active-path rule") and
// parses it; returns nil, nil if missing.
func (s *Store) GetLatest() (*evalengine.Artifact, error) {
	return readArtifact(s.ActivePath())
}

// ActivePath returns decision_frozen.json when it exists and the market
// is not OPEN; otherwise decision_latest.json (spec.md §4.3).
func (s *Store) ActivePath() string {
	if _, err := os.Stat(s.frozenPath()); err == nil {
		if s.clock == nil || !s.clock.IsOpen(time.Now()) {
			return s.frozenPath()
		}
	}
	return s.latestPath()
}

// ActivePathForPhase is ActivePath with the market phase supplied by
// the caller rather than recomputed from the store's own clock (spec.md
// §6.3 GetActiveDecision(phase): "returns the frozen file path when
// present and phase≠OPEN, else the canonical file").
func (s *Store) ActivePathForPhase(phase marketclock.Phase) string {
	if _, err := os.Stat(s.frozenPath()); err == nil {
		if phase != marketclock.PhaseOpen {
			return s.frozenPath()
		}
	}
	return s.latestPath()
}

// CanonicalLatest reads decision_latest.json directly, bypassing the
// frozen-precedence rule in ActivePath. Used by the freeze/EOD layer,
// which must always snapshot the canonical file regardless of which
// copy is currently being served to readers.
func (s *Store) CanonicalLatest() (*evalengine.Artifact, error) {
	return readArtifact(s.latestPath())
}

// GetByRun looks up the history file by run_id and returns it if symbol
// is present in it (empty symbol returns the whole artifact).
func (s *Store) GetByRun(symbol, runID string) (*evalengine.Artifact, error) {
	artifact, err := readArtifact(s.historyPath(runID))
	if err != nil || artifact == nil {
		return artifact, err
	}
	if symbol == "" {
		return artifact, nil
	}
	for _, sym := range artifact.Symbols {
		if sym.Symbol == symbol {
			return artifact, nil
		}
	}
	return nil, nil
}

// SymbolView is the convenience slice GetSymbol returns over the latest
// artifact (spec.md §4.3 "Operations").
type SymbolView struct {
	Summary     evalengine.SymbolEvalSummary
	Candidates  []string
	Gates       []string
	Diagnostics interface{}
}

// GetSymbol is a convenience slice over the latest artifact for one symbol.
func (s *Store) GetSymbol(symbol string) (*SymbolView, error) {
	artifact, err := s.GetLatest()
	if err != nil || artifact == nil {
		return nil, err
	}
	for _, sym := range artifact.Symbols {
		if sym.Symbol != symbol {
			continue
		}
		view := &SymbolView{Summary: sym}
		if d, ok := artifact.DiagnosticsBySymbol[symbol]; ok {
			view.Diagnostics = d
		}
		return view, nil
	}
	return nil, nil
}

// ReloadFromDisk re-parses the canonical file; the store is stateless
// across parses (spec.md §4.3: "there is no write-through cache").
func (s *Store) ReloadFromDisk() (*evalengine.Artifact, error) {
	return readArtifact(s.latestPath())
}

// Freeze copies decision_latest.json into decision_frozen.json
// (spec.md §4.5 "End-of-day freeze" — the per-day archive is the
// caller's responsibility via freezeguard.EODFreezer.Freeze).
func (s *Store) Freeze() error {
	artifact, err := readArtifact(s.latestPath())
	if err != nil {
		return fmt.Errorf("decisionstore: read latest for freeze: %w", err)
	}
	if artifact == nil {
		return fmt.Errorf("decisionstore: no latest artifact to freeze")
	}
	return writeAtomic(s.frozenPath(), artifact)
}

func writeAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func readArtifact(path string) (*evalengine.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var artifact evalengine.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &artifact, nil
}
