package storepg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chakraops/chakraops/internal/symbol"
)

// UniverseEntry is one curated-universe row (spec.md §3.1 Universe Entry).
type UniverseEntry struct {
	Symbol    string    `db:"symbol"`
	Enabled   bool      `db:"enabled"`
	Notes     string    `db:"notes"`
	Priority  int       `db:"priority"`
	Sector    string    `db:"sector"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UniverseRepo is the durable store for the curated symbol universe,
// grounded on the teacher's regimeRepo shape
// (internal/persistence/postgres/regime_repo.go): sqlx.DB + per-call
// context.WithTimeout + upsert-by-primary-key.
type UniverseRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUniverseRepo constructs a UniverseRepo.
func NewUniverseRepo(db *sqlx.DB, timeout time.Duration) *UniverseRepo {
	return &UniverseRepo{db: db, timeout: timeout}
}

// Upsert inserts or updates one universe entry, normalizing the symbol
// on write (spec.md §3.2 invariant 1).
func (r *UniverseRepo) Upsert(ctx context.Context, e UniverseEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	e.Symbol = symbol.Normalize(e.Symbol)
	if e.Symbol == "" {
		return fmt.Errorf("storepg: empty symbol after normalization")
	}

	query := `
		INSERT INTO universe (symbol, enabled, notes, priority, sector, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (symbol) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			notes = EXCLUDED.notes,
			priority = EXCLUDED.priority,
			sector = EXCLUDED.sector,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query, e.Symbol, e.Enabled, e.Notes, e.Priority, e.Sector)
	if err != nil {
		return fmt.Errorf("storepg: upsert universe entry %s: %w", e.Symbol, err)
	}
	return nil
}

// UpsertEnabled is the self-healing-rule helper (spec.md §4.1 step 5):
// upsert a batch of symbols as enabled, leaving notes/priority/sector
// at their existing values if the row already exists.
func (r *UniverseRepo) UpsertEnabled(ctx context.Context, syms []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, s := range symbol.Dedup(syms) {
		query := `
			INSERT INTO universe (symbol, enabled, updated_at)
			VALUES ($1, true, now())
			ON CONFLICT (symbol) DO UPDATE SET
				enabled = true,
				updated_at = now()`
		if _, err := r.db.ExecContext(ctx, query, s); err != nil {
			return fmt.Errorf("storepg: self-heal upsert %s: %w", s, err)
		}
	}
	return nil
}

// Enabled returns the enabled universe, ordered by priority then symbol.
func (r *UniverseRepo) Enabled(ctx context.Context) ([]UniverseEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, enabled, notes, priority, sector, updated_at
		FROM universe
		WHERE enabled = true
		ORDER BY priority DESC, symbol ASC`

	var entries []UniverseEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("storepg: list enabled universe: %w", err)
	}
	return entries, nil
}

// Get returns one universe entry by normalized symbol, or nil if absent.
func (r *UniverseRepo) Get(ctx context.Context, sym string) (*UniverseEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var e UniverseEntry
	err := r.db.GetContext(ctx, &e, `
		SELECT symbol, enabled, notes, priority, sector, updated_at
		FROM universe WHERE symbol = $1`, symbol.Normalize(sym))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storepg: get universe entry %s: %w", sym, err)
	}
	return &e, nil
}
