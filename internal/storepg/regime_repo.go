package storepg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RegimeRecord is one computed market regime (spec.md §3.1 Market
// Regime), persisted one per snapshot and retained indefinitely for
// audit (spec.md §3.3 lifecycles).
type RegimeRecord struct {
	ID              int64             `db:"id"`
	Regime          string            `db:"regime"`
	DetectedAt      time.Time         `db:"detected_at"`
	Signals         map[string]float64 `db:"-"`
	Stable          bool              `db:"stable"`
}

var validRegimes = map[string]bool{
	"BULL": true, "BEAR": true, "NEUTRAL": true,
	"RISK_ON": true, "RISK_OFF": true, "UNKNOWN": true,
}

// RegimeRepo persists market-regime history, grounded directly on the
// teacher's regimeRepo (internal/persistence/postgres/regime_repo.go):
// same sqlx.DB + timeout shape, same JSON-marshaled-map pattern, same
// isValidRegime-style guard before writing.
type RegimeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeRepo constructs a RegimeRepo.
func NewRegimeRepo(db *sqlx.DB, timeout time.Duration) *RegimeRepo {
	return &RegimeRepo{db: db, timeout: timeout}
}

// Insert records a newly computed regime. Unlike the teacher's Upsert
// (one row per 4h boundary), ChakraOps regime history is append-only
// per spec.md §3.3 — one row per snapshot build.
func (r *RegimeRepo) Insert(ctx context.Context, rec RegimeRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !validRegimes[rec.Regime] {
		return 0, fmt.Errorf("storepg: invalid regime %q", rec.Regime)
	}

	signalsJSON, err := json.Marshal(rec.Signals)
	if err != nil {
		return 0, fmt.Errorf("storepg: marshal regime signals: %w", err)
	}

	query := `
		INSERT INTO regime_history (regime, detected_at, signals, stable)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err = r.db.QueryRowxContext(ctx, query, rec.Regime, rec.DetectedAt, signalsJSON, rec.Stable).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storepg: insert regime record: %w", err)
	}
	return id, nil
}

// Latest returns the most recently detected regime, or nil if none
// exists yet (the scheduler's bootstrap rule, spec.md §4.4 step 1,
// handles this case by recomputing rather than failing).
func (r *RegimeRepo) Latest(ctx context.Context) (*RegimeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, regime, detected_at, signals, stable
		FROM regime_history ORDER BY detected_at DESC LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query)
	rec, err := scanRegimeRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storepg: latest regime: %w", err)
	}
	return rec, nil
}

func scanRegimeRecord(row *sqlx.Row) (*RegimeRecord, error) {
	var rec RegimeRecord
	var signalsJSON []byte

	if err := row.Scan(&rec.ID, &rec.Regime, &rec.DetectedAt, &signalsJSON, &rec.Stable); err != nil {
		return nil, err
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &rec.Signals); err != nil {
			return nil, fmt.Errorf("storepg: unmarshal regime signals: %w", err)
		}
	}
	return &rec, nil
}
