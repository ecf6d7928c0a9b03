package snapshot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/coreerrors"
	"github.com/chakraops/chakraops/internal/storepg"
	"github.com/chakraops/chakraops/internal/symbol"
)

// Builder materializes the frozen, per-symbol market view (C1's sole
// write path). Operations are spelled out in spec.md §4.1; orchestration
// here has no single teacher analogue — it is original logic written in
// the teacher's error-wrapping, context-threaded idiom.
type Builder struct {
	repos    *storepg.Repos
	csv      *CSVReader
	cache    *Cache
	csvPath  string
	cacheTTL time.Duration
}

// NewBuilder constructs a Builder.
func NewBuilder(repos *storepg.Repos, csvPath string, cache *Cache, cacheTTL time.Duration) *Builder {
	return &Builder{
		repos:    repos,
		csv:      NewCSVReader(),
		cache:    cache,
		csvPath:  csvPath,
		cacheTTL: cacheTTL,
	}
}

// requiredBenchmarks are the curated symbols always appended to the
// universe for regime computation (spec.md §3.1 Universe Entry).
var requiredBenchmarks = []string{"SPY", "QQQ"}

// Build runs the full sequence described in spec.md §4.1 and returns
// the committed metadata row.
func (b *Builder) Build(ctx context.Context, mode Mode) (*Metadata, error) {
	// Step 1: resolve the enabled universe, append benchmarks, dedup.
	enabled, err := b.repos.Universe.Enabled(ctx)
	if err != nil {
		return nil, coreerrors.SnapshotBuild("load enabled universe", err)
	}
	universeSyms := make([]string, 0, len(enabled)+len(requiredBenchmarks))
	for _, e := range enabled {
		universeSyms = append(universeSyms, e.Symbol)
	}
	universeSyms = append(universeSyms, requiredBenchmarks...)
	universe := symbol.Dedup(universeSyms)

	// Step 2: load raw rows from the selected source.
	sourceRows, source, sourceDetail, err := b.loadSource(ctx, mode)
	if err != nil {
		return nil, err
	}

	// Step 3: normalize every symbol (rows already normalized by the
	// reader); build a lookup.
	bySymbol := make(map[string]Row, len(sourceRows))
	for _, row := range sourceRows {
		bySymbol[row.Symbol] = row
	}

	// Step 4: universe ∩ source-symbols intersection.
	intersection := intersect(universe, bySymbol)

	// Step 5: self-healing rule.
	if len(intersection) == 0 && source == SourceCSV {
		srcSyms := make([]string, 0, len(bySymbol))
		for sym := range bySymbol {
			srcSyms = append(srcSyms, sym)
		}
		if err := b.repos.Universe.UpsertEnabled(ctx, srcSyms); err != nil {
			return nil, coreerrors.SnapshotBuild("self-heal universe upsert", err)
		}
		universe = symbol.Dedup(append(universe, srcSyms...))
		intersection = intersect(universe, bySymbol)
		log.Warn().Strs("symbols", srcSyms).Msg("snapshot: self-healed universe from CSV source")
	}

	// Step 6: one output row per universe symbol.
	now := time.Now()
	outRows := make([]Row, 0, len(universe))
	var newestDataDate time.Time
	withData := 0
	for _, sym := range universe {
		if row, ok := bySymbol[sym]; ok && intersection[sym] {
			outRows = append(outRows, row)
			if row.HasData {
				withData++
				if row.Date.After(newestDataDate) {
					newestDataDate = row.Date
				}
			}
			continue
		}
		outRows = append(outRows, Row{Symbol: sym, HasData: false})
	}

	// Step 7: data_age_minutes.
	dataAge := 0.0
	if !newestDataDate.IsZero() {
		dataAge = now.Sub(newestDataDate).Minutes()
		if dataAge < 0 {
			dataAge = 0
		}
	}

	meta := Metadata{
		SnapshotID:      uuid.NewString(),
		SnapshotTime:    now,
		Source:          source,
		SourceDetail:    sourceDetail,
		SymbolCount:     len(universe),
		SymbolsWithData: withData,
		DataAgeMinutes:  dataAge,
	}

	// Step 8: atomic commit (demote + insert, single transaction).
	if err := b.repos.Snapshot.Commit(ctx, meta, outRows); err != nil {
		return nil, coreerrors.SnapshotBuild("commit snapshot transaction", err)
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, outRows, b.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("snapshot: failed to populate cache after build")
		}
	}

	return &meta, nil
}

// loadSource implements the CSV/CACHE/AUTO source-selection rule
// (spec.md §4.1 step 2 and "Algorithmic detail": AUTO falls through
// CSV to CACHE when the file is absent; an explicit CSV request with a
// missing file is a hard configuration error).
func (b *Builder) loadSource(ctx context.Context, mode Mode) ([]Row, Source, string, error) {
	switch mode {
	case ModeCSV:
		rows, err := b.csv.LoadFile(b.csvPath)
		if err != nil {
			return nil, "", "", coreerrors.Config(fmt.Sprintf("CSV source %s unavailable", b.csvPath), err)
		}
		return rows, SourceCSV, b.csvPath, nil

	case ModeCache:
		return b.loadFromCache(ctx)

	case ModeAuto:
		if _, err := os.Stat(b.csvPath); err == nil {
			rows, err := b.csv.LoadFile(b.csvPath)
			if err != nil {
				return nil, "", "", coreerrors.SnapshotSource("AUTO mode CSV parse failed", err)
			}
			return rows, SourceCSV, b.csvPath, nil
		}
		return b.loadFromCache(ctx)

	default:
		return nil, "", "", coreerrors.Config(fmt.Sprintf("unknown build mode %q", mode), nil)
	}
}

func (b *Builder) loadFromCache(ctx context.Context) ([]Row, Source, string, error) {
	if b.cache == nil {
		return nil, "", "", coreerrors.SnapshotSource("CACHE mode requested but no cache configured", nil)
	}
	rows, found, err := b.cache.Get(ctx)
	if err != nil {
		return nil, "", "", coreerrors.SnapshotSource("cache read failed", err)
	}
	if !found {
		return nil, "", "", coreerrors.SnapshotSource("cache is empty, no prior snapshot to copy forward", nil)
	}
	return rows, SourceCache, "redis", nil
}

func intersect(universe []string, bySymbol map[string]Row) map[string]bool {
	out := make(map[string]bool, len(universe))
	for _, sym := range universe {
		if _, ok := bySymbol[sym]; ok {
			out[sym] = true
		}
	}
	return out
}

// TruncateForDevRebuild wipes all historical snapshots. Gated by
// CHAKRAOPS_DEV_MODE (spec.md §4.1 "a development-only truncate-before-
// rebuild mode exists, gated by an environment flag").
func (b *Builder) TruncateForDevRebuild(ctx context.Context, devMode bool) error {
	if !devMode {
		return coreerrors.Config("truncate requires CHAKRAOPS_DEV_MODE=true", nil)
	}
	return b.repos.Snapshot.TruncateAll(ctx)
}
