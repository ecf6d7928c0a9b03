package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/symbol"
)

// CSVReader loads per-symbol OHLCV rows from the configured input file
// (spec.md §4.1 step 2, `CSV` source). Column-name normalization and
// multi-format timestamp parsing are adapted directly from the
// teacher's internal/data/cold/csv.go CSVReader, generalized from
// order-book envelopes to daily OHLCV rows.
type CSVReader struct {
	dateFormats []string
}

// NewCSVReader constructs a CSVReader with the teacher's date-format
// fallback chain.
func NewCSVReader() *CSVReader {
	return &CSVReader{
		dateFormats: []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		},
	}
}

// LoadFile reads filePath and returns one Row per data line, keyed by
// its normalized symbol. A bad column or row is surfaced with its
// identity rather than silently skipped (spec.md §4.1 "Failure
// semantics"), unlike the teacher's LoadFile which drops bad rows.
func (r *CSVReader) LoadFile(filePath string) ([]Row, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open csv %s: %w", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read csv header: %w", err)
	}
	columnMap := r.mapColumns(header)
	if _, ok := columnMap["symbol"]; !ok {
		return nil, fmt.Errorf("snapshot: csv missing required 'symbol' column")
	}
	if _, hasClose := columnMap["close"]; !hasClose {
		if _, hasPrice := columnMap["price"]; !hasPrice {
			return nil, fmt.Errorf("snapshot: csv missing required 'close'/'price' column")
		}
	}

	var rows []Row
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("snapshot: read csv row %d: %w", lineNum, err)
		}

		row, err := r.parseRecord(record, columnMap)
		if err != nil {
			return nil, fmt.Errorf("snapshot: csv row %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("snapshot: csv %s has no data rows", filePath)
	}
	return rows, nil
}

// mapColumns builds a normalized-name -> index mapping (teacher's
// mapColumns idiom).
func (r *CSVReader) mapColumns(header []string) map[string]int {
	columnMap := make(map[string]int, len(header))
	for i, col := range header {
		columnMap[r.normalizeColumnName(col)] = i
	}
	return columnMap
}

// normalizeColumnName maps common spreadsheet/export header spellings
// to the canonical field name, the same switch-by-alias idiom as the
// teacher's normalizeColumnName. Matching is case-insensitive (spec.md
// §6.1): the header is lowercased before the alias switch.
func (r *CSVReader) normalizeColumnName(column string) string {
	switch strings.ToLower(strings.TrimSpace(column)) {
	case "ts", "time", "datetime", "date", "timestamp":
		return "timestamp"
	case "ticker", "pair", "instrument", "symbol":
		return "symbol"
	case "o", "open":
		return "open"
	case "h", "high":
		return "high"
	case "l", "low":
		return "low"
	case "c", "adj_close", "close_price", "close":
		return "close"
	case "price":
		return "price"
	case "vol", "volume_shares", "volume":
		return "volume"
	case "iv_rank", "ivr", "implied_vol_rank":
		return "iv_rank"
	default:
		return strings.ToLower(strings.TrimSpace(column))
	}
}

func (r *CSVReader) parseRecord(record []string, columnMap map[string]int) (Row, error) {
	var row Row

	symIdx, ok := columnMap["symbol"]
	if !ok || symIdx >= len(record) {
		return row, fmt.Errorf("symbol column out of range")
	}
	row.Symbol = symbol.Normalize(record[symIdx])
	if row.Symbol == "" {
		return row, fmt.Errorf("empty symbol")
	}

	// timestamp/date is optional (spec.md §6.1): a missing column
	// leaves row.Date at its zero value, and an unparseable value is
	// logged and treated as null rather than failing the whole file.
	if tsIdx, ok := columnMap["timestamp"]; ok && tsIdx < len(record) {
		ts, err := r.parseTimestamp(record[tsIdx])
		if err != nil {
			log.Warn().Str("symbol", row.Symbol).Str("raw", record[tsIdx]).
				Msg("snapshot: unparseable timestamp, accepting row with null date")
		} else {
			row.Date = ts
		}
	}

	if v, ok := floatAt(record, columnMap, "open"); ok {
		row.Open = v
	}
	if v, ok := floatAt(record, columnMap, "high"); ok {
		row.High = v
	}
	if v, ok := floatAt(record, columnMap, "low"); ok {
		row.Low = v
	}
	if v, ok := floatAt(record, columnMap, "close"); ok {
		row.Close = v
	} else if v, ok := floatAt(record, columnMap, "price"); ok {
		// price is the minimum required price column; when close is
		// absent, price is used as close (spec.md §6.1).
		row.Close = v
	}
	if v, ok := floatAt(record, columnMap, "volume"); ok {
		row.Volume = v
	}
	if v, ok := floatAt(record, columnMap, "iv_rank"); ok {
		row.IVRank = &v
	}

	// Missing open/high/low default to the resolved close.
	if row.Open == 0 {
		row.Open = row.Close
	}
	if row.High == 0 {
		row.High = row.Close
	}
	if row.Low == 0 {
		row.Low = row.Close
	}

	row.HasData = row.Close > 0

	return row, nil
}

func floatAt(record []string, columnMap map[string]int, field string) (float64, bool) {
	idx, ok := columnMap[field]
	if !ok || idx >= len(record) || record[idx] == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(record[idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseTimestamp tries every configured layout, then falls back to
// Unix seconds/milliseconds, matching the teacher's parseTimestamp.
func (r *CSVReader) parseTimestamp(s string) (time.Time, error) {
	for _, layout := range r.dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if unixVal, err := strconv.ParseInt(s, 10, 64); err == nil {
		if unixVal > 1e12 {
			return time.Unix(0, unixVal*int64(time.Millisecond)), nil
		}
		return time.Unix(unixVal, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
