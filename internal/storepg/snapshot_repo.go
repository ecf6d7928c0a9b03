package storepg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chakraops/chakraops/internal/snapshot"
)

// SnapshotRepo is the durable store for snapshot metadata and rows,
// grounded on the teacher's regimeRepo (sqlx.DB + context.WithTimeout
// wrapping every method) and its own manifest atomic-write discipline
// (internal/artifacts/manifest/io.go) translated from file-rename into
// an equivalent single-transaction demote-then-insert.
type SnapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo constructs a SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) *SnapshotRepo {
	return &SnapshotRepo{db: db, timeout: timeout}
}

// Commit performs spec.md §4.1 step 8: in a single transaction, demote
// every currently-frozen metadata row, insert the new metadata row and
// its data rows, and commit atomically. On any error the transaction is
// rolled back and the previous snapshot remains authoritative
// (spec.md §3.2 invariant 2).
func (r *SnapshotRepo) Commit(ctx context.Context, meta snapshot.Metadata, rows []snapshot.Row) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storepg: begin snapshot commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE snapshot_metadata SET is_frozen = false WHERE is_frozen = true`); err != nil {
		return fmt.Errorf("storepg: demote prior frozen snapshot: %w", err)
	}

	meta.IsFrozen = true
	insertMeta := `
		INSERT INTO snapshot_metadata
		(snapshot_id, snapshot_timestamp, source, source_detail, symbol_count,
		 symbols_with_data, data_age_minutes, is_frozen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`
	_, err = tx.ExecContext(ctx, insertMeta,
		meta.SnapshotID, meta.SnapshotTime, meta.Source, meta.SourceDetail,
		meta.SymbolCount, meta.SymbolsWithData, meta.DataAgeMinutes, meta.IsFrozen)
	if err != nil {
		return fmt.Errorf("storepg: insert snapshot metadata: %w", err)
	}

	insertRow := `
		INSERT INTO snapshot_rows
		(snapshot_id, symbol, date, open, high, low, close, volume, iv_rank, has_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, row := range rows {
		row.SnapshotID = meta.SnapshotID
		_, err := tx.ExecContext(ctx, insertRow,
			row.SnapshotID, row.Symbol, row.Date, row.Open, row.High, row.Low,
			row.Close, row.Volume, row.IVRank, row.HasData)
		if err != nil {
			return fmt.Errorf("storepg: insert snapshot row %s: %w", row.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storepg: commit snapshot: %w", err)
	}
	return nil
}

// GetActive returns the single is_frozen=true metadata row, or nil if
// no snapshot has ever been built.
func (r *SnapshotRepo) GetActive(ctx context.Context) (*snapshot.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var meta snapshot.Metadata
	err := r.db.GetContext(ctx, &meta, `
		SELECT snapshot_id, snapshot_timestamp, source, source_detail, symbol_count,
		       symbols_with_data, data_age_minutes, is_frozen, created_at
		FROM snapshot_metadata WHERE is_frozen = true`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storepg: get active snapshot: %w", err)
	}
	return &meta, nil
}

// GetLatestID returns the snapshot_id with the most recent
// snapshot_timestamp, or "" if none exist.
func (r *SnapshotRepo) GetLatestID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var id string
	err := r.db.GetContext(ctx, &id, `
		SELECT snapshot_id FROM snapshot_metadata
		ORDER BY snapshot_timestamp DESC LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("storepg: get latest snapshot id: %w", err)
	}
	return id, nil
}

// GetPreviousID returns the snapshot_id immediately before id by
// snapshot_timestamp, or "" if id is the oldest or unknown.
func (r *SnapshotRepo) GetPreviousID(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var prevID string
	err := r.db.GetContext(ctx, &prevID, `
		SELECT snapshot_id FROM snapshot_metadata
		WHERE snapshot_timestamp < (
			SELECT snapshot_timestamp FROM snapshot_metadata WHERE snapshot_id = $1
		)
		ORDER BY snapshot_timestamp DESC LIMIT 1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("storepg: get previous snapshot id: %w", err)
	}
	return prevID, nil
}

// LoadData returns every row for snapshot id, grouped by symbol.
func (r *SnapshotRepo) LoadData(ctx context.Context, id string) (map[string][]snapshot.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []snapshot.Row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT snapshot_id, symbol, date, open, high, low, close, volume, iv_rank, has_data
		FROM snapshot_rows WHERE snapshot_id = $1
		ORDER BY symbol ASC, date ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("storepg: load snapshot data %s: %w", id, err)
	}

	out := make(map[string][]snapshot.Row, len(rows))
	for _, row := range rows {
		out[row.Symbol] = append(out[row.Symbol], row)
	}
	return out, nil
}

// GetPrices reduces each symbol's rows to the last (most recent date)
// observation, the convenience accessor spec.md §4.1 names GetPrices.
func (r *SnapshotRepo) GetPrices(ctx context.Context, id string) (map[string]snapshot.PriceSummary, error) {
	data, err := r.LoadData(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make(map[string]snapshot.PriceSummary, len(data))
	for sym, rows := range data {
		if len(rows) == 0 {
			continue
		}
		last := rows[len(rows)-1]
		out[sym] = snapshot.PriceSummary{
			Price:  last.Close,
			Volume: last.Volume,
			IVRank: last.IVRank,
		}
	}
	return out, nil
}

// TruncateAll deletes every snapshot row and metadata row. Gated behind
// a development-only environment flag (spec.md §4.1 "Algorithmic
// detail"); production builds must never call this.
func (r *SnapshotRepo) TruncateAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `TRUNCATE snapshot_rows, snapshot_metadata CASCADE`); err != nil {
		return fmt.Errorf("storepg: truncate snapshots: %w", err)
	}
	return nil
}
