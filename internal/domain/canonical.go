package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// mphPerKnot converts statute miles per hour to knots. Sources reporting
// mph are converted exactly once, at the adapter boundary; knots are never
// re-divided downstream.
const mphPerKnot = 1.151

// Presentation-only conversion factors applied at the API edge.
const (
	MPHPerKnot = 1.15078
	KPHPerKnot = 1.852
)

// KnotsFromMPH converts a wind speed in miles per hour to whole knots.
func KnotsFromMPH(mph float64) int {
	return int(math.Round(mph / mphPerKnot))
}

// DecodeHemisphere converts an ATCF coordinate string of tenths of degrees
// with a trailing hemisphere letter into signed decimal degrees:
//
//	"262N" → 26.2    "800W" → -80.0
//
// North and east are positive.
func DecodeHemisphere(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: coordinate %q too short", ErrRecordParse, s)
	}

	suffix := s[len(s)-1]
	magnitude, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q: %v", ErrRecordParse, s, err)
	}
	degrees := magnitude / 10

	switch suffix {
	case 'N', 'E':
		return degrees, nil
	case 'S', 'W':
		return -degrees, nil
	default:
		return 0, fmt.Errorf("%w: coordinate %q has unknown hemisphere %q", ErrRecordParse, s, suffix)
	}
}

// EncodeLat renders a signed latitude in the ATCF tenths-with-hemisphere
// form, the inverse of DecodeHemisphere.
func EncodeLat(lat float64) string {
	if lat < 0 {
		return fmt.Sprintf("%.0fS", -lat*10)
	}
	return fmt.Sprintf("%.0fN", lat*10)
}

// EncodeLon renders a signed longitude in the ATCF tenths-with-hemisphere form.
func EncodeLon(lon float64) string {
	if lon < 0 {
		return fmt.Sprintf("%.0fW", -lon*10)
	}
	return fmt.Sprintf("%.0fE", lon*10)
}

// CompositeID synthesizes the cross-source storm identifier when an upstream
// format does not carry one: basin code + two-digit cyclone number + season,
// lowercased to match the NHC ATCF convention, e.g. ("AL", 9, 2024) → "al092024".
func CompositeID(basin string, number, year int) string {
	return fmt.Sprintf("%s%02d%d", strings.ToLower(basin), number, year)
}

// Validate checks the canonical-record invariants for a single entry.
func Validate(e TrackEntry) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: empty storm id", ErrRecordParse)
	case e.Time.IsZero():
		return fmt.Errorf("%w: %s: zero observation time", ErrRecordParse, e.ID)
	case e.Lat < -90 || e.Lat > 90:
		return fmt.Errorf("%w: %s: latitude %.2f out of range", ErrRecordParse, e.ID, e.Lat)
	case e.Lon < -180 || e.Lon > 180:
		return fmt.Errorf("%w: %s: longitude %.2f out of range", ErrRecordParse, e.ID, e.Lon)
	case e.WindSpeed < 0:
		return fmt.Errorf("%w: %s: negative wind speed %d", ErrRecordParse, e.ID, e.WindSpeed)
	}
	return nil
}

// Canonicalize merges adapter output into the uniform record set: entries
// failing validation are dropped (callers log the count), duplicate
// observations for the same (id, time) are collapsed keeping the first
// occurrence (adapters are registered in provenance-priority order), and the
// result is sorted by the deterministic (id, time, source) key so that
// fingerprinting is independent of adapter completion order.
//
// Returns the canonical set and the number of entries dropped as invalid.
func Canonicalize(entries []TrackEntry) ([]TrackEntry, int) {
	type key struct {
		id   string
		time int64
	}

	seen := make(map[key]struct{}, len(entries))
	canonical := make([]TrackEntry, 0, len(entries))
	dropped := 0

	for _, e := range entries {
		if err := Validate(e); err != nil {
			dropped++
			continue
		}
		e.Time = e.Time.UTC()
		k := key{id: e.ID, time: e.Time.Unix()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		canonical = append(canonical, e)
	}

	SortCanonical(canonical)
	return canonical, dropped
}

// SortCanonical orders entries by the fixed (id, time, source) key.
func SortCanonical(entries []TrackEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Source < b.Source
	})
}
