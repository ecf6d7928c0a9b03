package freezeguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/chakraops/chakraops/internal/decisionstore"
	"github.com/chakraops/chakraops/internal/storepg"
)

// ArchiveManifest records one day's frozen artifact alongside its dated
// archive copy (spec.md §4.5 "End-of-day freeze": "a per-day archive
// directory with a manifest").
type ArchiveManifest struct {
	Date         string    `json:"date"`
	RunID        string    `json:"run_id"`
	UniverseSize int       `json:"universe_size"`
	FrozenAt     time.Time `json:"frozen_at"`
}

// EODFreezer performs the end-of-day freeze: decision_latest.json into
// decision_frozen.json (via decisionstore.Store.Freeze), plus a dated
// archive copy with a manifest. Grounded on decisionstore.Store's
// write-temp+fsync+rename idiom (itself grounded on the teacher's
// internal/artifacts/manifest/io.go).
type EODFreezer struct {
	store      *decisionstore.Store
	archiveDir string
}

// NewEODFreezer constructs an EODFreezer archiving into archiveDir.
func NewEODFreezer(store *decisionstore.Store, archiveDir string) *EODFreezer {
	return &EODFreezer{store: store, archiveDir: archiveDir}
}

// ErrNoLatestArtifact is returned when there is nothing to freeze.
var ErrNoLatestArtifact = errors.New("freezeguard: no latest artifact to freeze")

// Freeze snapshots the canonical latest artifact into decision_frozen.json
// and archives a dated copy with a manifest. After this call the
// active-path rule (decisionstore.Store.ActivePath) serves the frozen
// copy until market-open the next session (spec.md §4.5).
func (f *EODFreezer) Freeze(at time.Time) (*ArchiveManifest, error) {
	artifact, err := f.store.CanonicalLatest()
	if err != nil {
		return nil, fmt.Errorf("freezeguard: read latest: %w", err)
	}
	if artifact == nil {
		return nil, ErrNoLatestArtifact
	}

	if err := f.store.Freeze(); err != nil {
		return nil, fmt.Errorf("freezeguard: freeze: %w", err)
	}

	day := at.Format("2006-01-02")
	dayDir := filepath.Join(f.archiveDir, day)

	archivePath := filepath.Join(dayDir, fmt.Sprintf("decision_%s.json", artifact.Metadata.RunID))
	if err := writeAtomic(archivePath, artifact); err != nil {
		return nil, fmt.Errorf("freezeguard: archive artifact: %w", err)
	}

	manifest := &ArchiveManifest{
		Date:         day,
		RunID:        artifact.Metadata.RunID,
		UniverseSize: artifact.Metadata.UniverseSize,
		FrozenAt:     at,
	}
	manifestPath := filepath.Join(dayDir, "manifest.json")
	if err := writeAtomic(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("freezeguard: write manifest: %w", err)
	}

	return manifest, nil
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
	return os.Rename(tmpPath, path)
}

// CriticalConfig is the set of configuration values the drift guard
// watches (spec.md §4.5 "Config-hash guard": "hash(critical_config)").
// Callers assemble it from whichever config sections they consider
// safety-critical (gate thresholds, chain filters, regime thresholds).
type CriticalConfig map[string]interface{}

// ConfigHashGuard computes hash(critical_config) on each evaluation run
// and compares it to the previously persisted hash, flagging drift
// while run_mode is LIVE as an auditable (non-blocking) signal (spec.md
// §4.5). Persistence is storepg.FreezeRepo's single-row
// {config_hash, config_snapshot, run_mode, updated_at} record.
type ConfigHashGuard struct {
	repo *storepg.FreezeRepo
}

// NewConfigHashGuard constructs a ConfigHashGuard over repo.
func NewConfigHashGuard(repo *storepg.FreezeRepo) *ConfigHashGuard {
	return &ConfigHashGuard{repo: repo}
}

// Result is the outcome of one Check call.
type Result struct {
	Violated    bool
	ChangedKeys []string
	Hash        string
}

// Check hashes cfg, compares it to the stored hash from the previous
// run, and records the new hash/snapshot/run_mode. A first-ever run (no
// stored hash yet) is never violated — there is nothing to drift from.
func (g *ConfigHashGuard) Check(ctx context.Context, cfg CriticalConfig, runMode string) (Result, error) {
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("freezeguard: marshal critical config: %w", err)
	}
	sum := sha256.Sum256(snapshot)
	hash := hex.EncodeToString(sum[:])

	prev, err := g.repo.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("freezeguard: read prior config state: %w", err)
	}

	result := Result{Hash: hash}
	if prev.ConfigHash != "" && prev.ConfigHash != hash && runMode == "LIVE" {
		result.Violated = true
		result.ChangedKeys = diffKeys(prev.ConfigSnapshot, snapshot)
	}

	if err := g.repo.RecordConfig(ctx, hash, snapshot, runMode); err != nil {
		return result, fmt.Errorf("freezeguard: record config: %w", err)
	}
	return result, nil
}

// diffKeys reports which top-level keys differ between two JSON-encoded
// critical-config snapshots, sorted for determinism.
func diffKeys(prevJSON, currJSON []byte) []string {
	var prev, curr map[string]interface{}
	if len(prevJSON) > 0 {
		_ = json.Unmarshal(prevJSON, &prev)
	}
	_ = json.Unmarshal(currJSON, &curr)

	seen := make(map[string]bool)
	var changed []string
	for k, v := range curr {
		if pv, ok := prev[k]; !ok || !reflect.DeepEqual(pv, v) {
			if !seen[k] {
				changed = append(changed, k)
				seen[k] = true
			}
		}
	}
	for k := range prev {
		if _, ok := curr[k]; !ok && !seen[k] {
			changed = append(changed, k)
			seen[k] = true
		}
	}
	sort.Strings(changed)
	return changed
}
