package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHemisphere(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "north latitude", input: "262N", want: 26.2},
		{name: "south latitude", input: "151S", want: -15.1},
		{name: "west longitude", input: "800W", want: -80.0},
		{name: "east longitude", input: "1345E", want: 134.5},
		{name: "leading whitespace", input: " 262N", want: 26.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHemisphere(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDecodeHemisphereInvalid(t *testing.T) {
	for _, input := range []string{"", "N", "26.2X", "abcN"} {
		t.Run(input, func(t *testing.T) {
			_, err := DecodeHemisphere(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRecordParse)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	lat, err := DecodeHemisphere(EncodeLat(26.2))
	require.NoError(t, err)
	assert.InDelta(t, 26.2, lat, 1e-9)

	lon, err := DecodeHemisphere(EncodeLon(-80.0))
	require.NoError(t, err)
	assert.InDelta(t, -80.0, lon, 1e-9)
}

func TestKnotsFromMPH(t *testing.T) {
	// 115.1 mph is exactly 100 kt under the ATCF convention.
	assert.Equal(t, 100, KnotsFromMPH(115.1))
	assert.Equal(t, 65, KnotsFromMPH(75))
	assert.Equal(t, 0, KnotsFromMPH(0))
}

func TestCompositeID(t *testing.T) {
	assert.Equal(t, "al092024", CompositeID("AL", 9, 2024))
	assert.Equal(t, "ep152023", CompositeID("ep", 15, 2023))
}

func TestValidate(t *testing.T) {
	valid := TrackEntry{
		ID:        "al092024",
		Time:      time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC),
		Lat:       26.2,
		Lon:       -80.0,
		WindSpeed: 85,
		Source:    "nhc",
	}
	require.NoError(t, Validate(valid))

	t.Run("latitude out of range", func(t *testing.T) {
		e := valid
		e.Lat = 91
		assert.Error(t, Validate(e))
	})
	t.Run("longitude out of range", func(t *testing.T) {
		e := valid
		e.Lon = -181
		assert.Error(t, Validate(e))
	})
	t.Run("negative wind", func(t *testing.T) {
		e := valid
		e.WindSpeed = -5
		assert.Error(t, Validate(e))
	})
	t.Run("missing id", func(t *testing.T) {
		e := valid
		e.ID = ""
		assert.Error(t, Validate(e))
	})
	t.Run("zero time", func(t *testing.T) {
		e := valid
		e.Time = time.Time{}
		assert.Error(t, Validate(e))
	})
}

func TestCanonicalizeDedupsAndSorts(t *testing.T) {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	entries := []TrackEntry{
		{ID: "ep052024", Time: base, Lat: 15.0, Lon: -105.0, WindSpeed: 60, Source: "hwrf"},
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
		// Same storm and time from a second source: first one wins.
		{ID: "al092024", Time: base, Lat: 26.3, Lon: -80.1, WindSpeed: 80, Source: "hwrf"},
		{ID: "al092024", Time: base.Add(-6 * time.Hour), Lat: 25.8, Lon: -79.1, WindSpeed: 80, Source: "nhc"},
	}

	canonical, dropped := Canonicalize(entries)
	require.Zero(t, dropped)
	require.Len(t, canonical, 3)

	assert.Equal(t, "al092024", canonical[0].ID)
	assert.Equal(t, "al092024", canonical[1].ID)
	assert.Equal(t, "ep052024", canonical[2].ID)
	assert.True(t, canonical[0].Time.Before(canonical[1].Time))

	// The nhc entry arrived first, so the hwrf duplicate was discarded.
	assert.Equal(t, 85, canonical[1].WindSpeed)
	assert.Equal(t, "nhc", canonical[1].Source)
}

func TestCanonicalizeDropsInvalid(t *testing.T) {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	entries := []TrackEntry{
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
		{ID: "al092024", Time: base.Add(6 * time.Hour), Lat: 120.0, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
	}
	canonical, dropped := Canonicalize(entries)
	assert.Equal(t, 1, dropped)
	assert.Len(t, canonical, 1)
}

func TestCanonicalizeNormalizesToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	entries := []TrackEntry{
		{ID: "al092024", Time: time.Date(2024, 9, 3, 7, 0, 0, 0, est), Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
	}
	canonical, dropped := Canonicalize(entries)
	require.Zero(t, dropped)
	require.Len(t, canonical, 1)
	assert.Equal(t, time.UTC, canonical[0].Time.Location())
	assert.Equal(t, 12, canonical[0].Time.Hour())
}

func TestGroupByStorm(t *testing.T) {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	entries := []TrackEntry{
		{ID: "ep052024", Time: base, Lat: 15.0, Lon: -105.0, WindSpeed: 60, Source: "hwrf"},
		{ID: "al092024", Time: base.Add(-6 * time.Hour), Lat: 25.8, Lon: -79.1, WindSpeed: 80, Source: "nhc"},
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
	}

	storms := GroupByStorm(entries)
	require.Len(t, storms, 2)
	assert.Equal(t, "al092024", storms[0].ID)
	assert.Equal(t, "ep052024", storms[1].ID)

	// Entries within a storm are most recent first.
	require.Len(t, storms[0].Entries, 2)
	assert.Equal(t, base, storms[0].Entries[0].Time)
	assert.Equal(t, base, storms[0].LatestTime())
}
