package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fingerprintEntries() []TrackEntry {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	pressure := 955.0
	return []TrackEntry{
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Pressure: &pressure, Source: "nhc"},
		{ID: "al092024", Time: base.Add(-6 * time.Hour), Lat: 25.8, Lon: -79.1, WindSpeed: 80, Source: "nhc"},
		{ID: "ep052024", Time: base, Lat: 15.0, Lon: -105.0, WindSpeed: 60, Source: "hwrf"},
	}
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	entries := fingerprintEntries()
	shuffled := []TrackEntry{entries[2], entries[0], entries[1]}

	assert.Equal(t, Fingerprint(entries), Fingerprint(shuffled))
}

func TestFingerprintDoesNotMutateInput(t *testing.T) {
	entries := fingerprintEntries()
	shuffled := []TrackEntry{entries[2], entries[0], entries[1]}

	Fingerprint(shuffled)
	assert.Equal(t, "ep052024", shuffled[0].ID, "fingerprinting must not reorder the caller's slice")
}

func TestFingerprintIsSensitiveToContent(t *testing.T) {
	entries := fingerprintEntries()
	base := Fingerprint(entries)

	t.Run("wind change", func(t *testing.T) {
		changed := fingerprintEntries()
		changed[0].WindSpeed = 90
		assert.NotEqual(t, base, Fingerprint(changed))
	})
	t.Run("position change", func(t *testing.T) {
		changed := fingerprintEntries()
		changed[1].Lat += 0.1
		assert.NotEqual(t, base, Fingerprint(changed))
	})
	t.Run("pressure cleared", func(t *testing.T) {
		changed := fingerprintEntries()
		changed[0].Pressure = nil
		assert.NotEqual(t, base, Fingerprint(changed))
	})
	t.Run("entry removed", func(t *testing.T) {
		changed := fingerprintEntries()
		assert.NotEqual(t, base, Fingerprint(changed[:2]))
	})
}

func TestFingerprintIsStableAcrossRuns(t *testing.T) {
	entries := fingerprintEntries()
	first := Fingerprint(entries)
	second := Fingerprint(entries)
	require.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprintEmpty(t *testing.T) {
	assert.NotEmpty(t, Fingerprint(nil))
	assert.Equal(t, Fingerprint(nil), Fingerprint([]TrackEntry{}))
}
