package domain

import (
	"errors"
	"sort"
	"time"
)

// Error taxonomy for the ingest and forecast pipelines. Callers use
// errors.Is to classify failures; see the propagation rules in each package.
var (
	// ErrSourceFetch marks an unreachable or top-level-malformed upstream
	// document. Fatal for the ingest cycle: no partial snapshot is written.
	ErrSourceFetch = errors.New("source fetch failed")

	// ErrRecordParse marks one malformed entry within an otherwise valid
	// batch. Recovered locally by skipping the entry.
	ErrRecordParse = errors.New("record parse failed")

	// ErrExtraction means a model response contained no locatable
	// structured payload.
	ErrExtraction = errors.New("no structured payload in response")

	// ErrDecode means the located payload was not well-formed JSON.
	ErrDecode = errors.New("payload decode failed")

	// ErrRetryExhausted is terminal for one forecast request. It does not
	// propagate to sibling storms.
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// TrackEntry is one canonical observation of a tropical storm at an instant.
// Immutable once canonicalized.
type TrackEntry struct {
	ID        string    `json:"id"` // ATCF-style composite, e.g. "al092024"
	Time      time.Time `json:"time"`
	Lat       float64   `json:"lat"` // decimal degrees, north positive
	Lon       float64   `json:"lon"` // decimal degrees, east positive
	WindSpeed int       `json:"wind_speed"` // max sustained wind, knots
	Pressure  *float64  `json:"pressure,omitempty"` // millibars
	Source    string    `json:"source"` // adapter identifier, provenance
}

// StormSnapshot is the working set a forecast is built from: all canonical
// entries for one storm, most recent first.
type StormSnapshot struct {
	ID      string
	Entries []TrackEntry // sorted by time descending
}

// LatestTime returns the most recent observation time in the snapshot.
func (s StormSnapshot) LatestTime() time.Time {
	if len(s.Entries) == 0 {
		return time.Time{}
	}
	return s.Entries[0].Time
}

// GroupByStorm splits canonical entries into per-storm snapshots, each
// sorted time-descending. Snapshots are returned in ascending ID order so
// callers iterate deterministically.
func GroupByStorm(entries []TrackEntry) []StormSnapshot {
	byID := make(map[string][]TrackEntry)
	for _, e := range entries {
		byID[e.ID] = append(byID[e.ID], e)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshots := make([]StormSnapshot, 0, len(ids))
	for _, id := range ids {
		es := byID[id]
		sort.Slice(es, func(i, j int) bool { return es[i].Time.After(es[j].Time) })
		snapshots = append(snapshots, StormSnapshot{ID: id, Entries: es})
	}
	return snapshots
}

// IngestResult reports the outcome of one ingest cycle. A repeated
// fingerprint is not an error: IsNew=false is the defined idempotent no-op.
type IngestResult struct {
	Fingerprint string `json:"fingerprint"`
	IsNew       bool   `json:"is_new"`
	Entries     int    `json:"entries"`
}

// ForecastRequest is one outstanding prompt/response cycle against the
// text-generation service. Metadata is a fixed record, not an open map.
type ForecastRequest struct {
	StormID  string
	Horizons []int // forecast lead times, hours, ascending
	History  []TrackEntry
	Retries  int
	ThreadID string
	ModelTag string
}

// ForecastResult is one parsed forecast for a single storm and horizon.
// Never partially populated: it exists only after a successful decode.
type ForecastResult struct {
	StormID       string    `json:"id"`
	HorizonHours  int       `json:"horizon_hours"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	WindSpeed     float64   `json:"wind_speed"` // knots
	PredictedTime time.Time `json:"time"`
	ModelTag      string    `json:"model"`
	Reflected     bool      `json:"reflected"`
}
