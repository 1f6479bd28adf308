package hwrf

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// dtgLayout is the ATCF date-time-group, e.g. "2024090112".
const dtgLayout = "2006010215"

// maxDeckColumns over-allocates column names for the ATCF layout. The
// trailing column count varies by writer (some append radii, seas, and
// user-defined fields), so every row is padded to this width and columns
// that are empty across all rows are dropped after parse.
const maxDeckColumns = 40

// Well-known leading ATCF columns, by over-allocated name. Names survive
// the empty-column drop, so access stays stable even when a sparse column
// (e.g. technum) disappears.
const (
	colBasin = "c00"
	colCY    = "c01"
	colDTG   = "c02"
	colTech  = "c04"
	colLat   = "c06"
	colLon   = "c07"
	colVMax  = "c08"
	colMSLP  = "c09"
)

// deckTable is a parsed deck file with named, empty-dropped columns.
type deckTable struct {
	index map[string]int
	rows  [][]string
}

func newDeckTable(records [][]string) *deckTable {
	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}
	if width > maxDeckColumns {
		width = maxDeckColumns
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, width)
		for j := 0; j < width && j < len(rec); j++ {
			row[j] = strings.TrimSpace(rec[j])
		}
		rows[i] = row
	}

	// Drop columns that are empty in every row, preserving name→position.
	index := make(map[string]int)
	kept := 0
	for j := 0; j < width; j++ {
		empty := true
		for _, row := range rows {
			if row[j] != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		for _, row := range rows {
			row[kept] = row[j]
		}
		index[fmt.Sprintf("c%02d", j)] = kept
		kept++
	}
	for i := range rows {
		rows[i] = rows[i][:kept]
	}

	return &deckTable{index: index, rows: rows}
}

func (t *deckTable) get(row int, name string) string {
	j, ok := t.index[name]
	if !ok {
		return ""
	}
	return t.rows[row][j]
}

// ParseDeck parses an ATCF b-deck file into canonical entries. Rows that are
// not best-track fixes are ignored; rows sharing the same
// (basin, cyclone number, timestamp) key are exact duplicates across
// forecast cycles and are collapsed to the first occurrence. Malformed rows
// are dropped and their errors returned for logging.
func ParseDeck(data []byte) ([]domain.TrackEntry, []error, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read deck: %w", err)
	}
	table := newDeckTable(records)

	seen := make(map[fixKey]struct{})

	var entries []domain.TrackEntry
	var dropped []error
	for i := range table.rows {
		if tech := table.get(i, colTech); tech != "" && tech != "BEST" {
			continue
		}

		entry, key, err := parseFix(table, i)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, dropped, nil
}

// fixKey identifies one best-track fix across duplicate forecast cycles.
type fixKey struct {
	basin string
	cy    int
	dtg   string
}

func parseFix(table *deckTable, row int) (domain.TrackEntry, fixKey, error) {
	basin := strings.ToUpper(table.get(row, colBasin))
	if basin == "" {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("%w: deck row %d: missing basin", domain.ErrRecordParse, row)
	}

	cy, err := strconv.Atoi(table.get(row, colCY))
	if err != nil {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("%w: deck row %d: cyclone number %q", domain.ErrRecordParse, row, table.get(row, colCY))
	}

	dtg := table.get(row, colDTG)
	at, err := time.Parse(dtgLayout, dtg)
	if err != nil {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("%w: deck row %d: dtg %q", domain.ErrRecordParse, row, dtg)
	}

	lat, err := domain.DecodeHemisphere(table.get(row, colLat))
	if err != nil {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("deck row %d: %w", row, err)
	}
	lon, err := domain.DecodeHemisphere(table.get(row, colLon))
	if err != nil {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("deck row %d: %w", row, err)
	}

	// b-deck winds are already knots; no conversion here.
	kt, err := strconv.Atoi(table.get(row, colVMax))
	if err != nil {
		return domain.TrackEntry{}, fixKey{}, fmt.Errorf("%w: deck row %d: vmax %q", domain.ErrRecordParse, row, table.get(row, colVMax))
	}

	entry := domain.TrackEntry{
		ID:        domain.CompositeID(basin, cy, at.Year()),
		Time:      at.UTC(),
		Lat:       lat,
		Lon:       lon,
		WindSpeed: kt,
		Source:    SourceName,
	}
	if mslp, err := strconv.ParseFloat(table.get(row, colMSLP), 64); err == nil && mslp > 0 {
		entry.Pressure = &mslp
	}
	return entry, fixKey{basin: basin, cy: cy, dtg: dtg}, nil
}
