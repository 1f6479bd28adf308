package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Fingerprint computes the content digest used as the ingest idempotence
// token. The same canonical set always yields the same digest regardless of
// the order entries arrived in: entries are re-sorted on the explicit
// (id, time, source) key before serialization, so the guarantee holds under
// any backing collection. Collision resistance only needs to be good enough
// to avoid accidental re-ingestion skips; SHA-256 is well past that bar.
func Fingerprint(entries []TrackEntry) string {
	sorted := make([]TrackEntry, len(entries))
	copy(sorted, entries)
	SortCanonical(sorted)

	h := sha256.New()
	var b strings.Builder
	for _, e := range sorted {
		b.Reset()
		fmt.Fprintf(&b, "%s|%s|%.4f|%.4f|%d|%s|%s\n",
			e.ID,
			e.Time.UTC().Format(time.RFC3339),
			e.Lat,
			e.Lon,
			e.WindSpeed,
			formatPressure(e.Pressure),
			e.Source,
		)
		h.Write([]byte(b.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatPressure(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *p)
}
