// Package snapshot implements the market snapshot store (C1): an
// immutable ledger (one random-UUID snapshot_id per build) of per-symbol market data built
// from an external source (CSV file or cache) and used as the single
// frozen input for all downstream evaluation.
package snapshot

import "time"

// Source enumerates where a snapshot's rows originated.
type Source string

const (
	SourceCSV   Source = "CSV"
	SourceCache Source = "CACHE"
)

// Mode is the build-time input selector; AUTO falls through CSV to
// CACHE when the configured CSV file is absent (spec.md §4.1).
type Mode string

const (
	ModeCSV   Mode = "CSV"
	ModeCache Mode = "CACHE"
	ModeAuto  Mode = "AUTO"
)

// Metadata is one row per snapshot build (spec.md §3.1 SnapshotMetadata).
type Metadata struct {
	SnapshotID       string    `db:"snapshot_id"`
	SnapshotTime     time.Time `db:"snapshot_timestamp"`
	Source           Source    `db:"source"`
	SourceDetail     string    `db:"source_detail"`
	SymbolCount      int       `db:"symbol_count"`
	SymbolsWithData  int       `db:"symbols_with_data"`
	DataAgeMinutes   float64   `db:"data_age_minutes"`
	IsFrozen         bool      `db:"is_frozen"`
	CreatedAt        time.Time `db:"created_at"`
}

// Row is one (snapshot_id, symbol) observation (spec.md §3.1 SnapshotRow).
// When HasData is false, the OHLCV fields carry their zero value but the
// row is still present — the invariant is "no silent drops".
type Row struct {
	SnapshotID string    `db:"snapshot_id"`
	Symbol     string    `db:"symbol"`
	Date       time.Time `db:"date"`
	Open       float64   `db:"open"`
	High       float64   `db:"high"`
	Low        float64   `db:"low"`
	Close      float64   `db:"close"`
	Volume     float64   `db:"volume"`
	IVRank     *float64  `db:"iv_rank"`
	HasData    bool      `db:"has_data"`
}

// PriceSummary is the convenience reducer GetPrices() returns: the last
// row per symbol, reduced to the fields evaluation actually consumes.
type PriceSummary struct {
	Price  float64
	Volume float64
	IVRank *float64
}
