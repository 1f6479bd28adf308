package nhc

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackKMLHeader = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
<Folder><name>Data</name>
`

const trackKMLFooter = `</Folder>
</Document>
</kml>`

func placemark(dtg, lat, lon, intensity, mslp string) string {
	return fmt.Sprintf(`<Placemark><atcfdtg>%s</atcfdtg><lat>%s</lat><lon>%s</lon><intensity>%s</intensity><minSeaLevelPres>%s</minSeaLevelPres></Placemark>
`, dtg, lat, lon, intensity, mslp)
}

// buildKMZ zips a track KML under the member name the feed uses.
func buildKMZ(t *testing.T, kml string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("al092024.kml")
	require.NoError(t, err)
	_, err = w.Write([]byte(kml))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func indexKML(pastTrackHref string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2" xmlns:tc="https://www.nhc.noaa.gov">
<Document>
<Folder id="wsp34">
  <name>Wind Speed Probabilities</name>
</Folder>
<Folder id="at1">
  <name>Invest</name>
</Folder>
<Folder id="at2">
  <name>Hurricane NINE</name>
  <ExtendedData>
    <tc:atcfID>AL092024</tc:atcfID>
    <tc:name>NINE</tc:name>
    <tc:dateTime>8:00 AM EDT September 3, 2024</tc:dateTime>
    <tc:centerLat>26.2</tc:centerLat>
    <tc:centerLon>-80.0</tc:centerLon>
    <tc:minimumPressure>955 mb</tc:minimumPressure>
    <tc:maxSustainedWind>100 mph</tc:maxSustainedWind>
  </ExtendedData>
  <NetworkLink id="pasttrack">
    <Link><href>%s</href></Link>
  </NetworkLink>
</Folder>
</Document>
</kml>`, pastTrackHref)
}

func newIndexServer(t *testing.T, kmz []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/index.kml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexKML(srv.URL+"/al092024_best_track.kmz"))
	})
	mux.HandleFunc("/al092024_best_track.kmz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(kmz)
	})
	return srv
}

func TestFetchActiveStorms(t *testing.T) {
	kmz := buildKMZ(t, trackKMLHeader+
		placemark("2024090300", "25.1", "-78.0", "70", "970")+
		placemark("2024090306", "25.8", "-79.1", "80", "960")+
		trackKMLFooter)
	srv := newIndexServer(t, kmz)

	client := New(srv.URL+"/index.kml", 5*time.Second, slog.New(slog.DiscardHandler))
	entries, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3, "one advisory entry plus two history placemarks")

	latest := entries[0]
	assert.Equal(t, "al092024", latest.ID)
	// 8:00 AM EDT is noon UTC.
	assert.Equal(t, time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC), latest.Time)
	assert.InDelta(t, 26.2, latest.Lat, 1e-9)
	assert.InDelta(t, -80.0, latest.Lon, 1e-9)
	// 100 mph converts to 87 kt.
	assert.Equal(t, 87, latest.WindSpeed)
	require.NotNil(t, latest.Pressure)
	assert.InDelta(t, 955.0, *latest.Pressure, 1e-9)
	assert.Equal(t, SourceName, latest.Source)

	assert.Equal(t, time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC), entries[1].Time)
	assert.Equal(t, 70, entries[1].WindSpeed)
}

func TestFetchSkipsMalformedPlacemark(t *testing.T) {
	kmz := buildKMZ(t, trackKMLHeader+
		placemark("2024090212", "24.0", "-76.2", "55", "990")+
		placemark("2024090218", "24.5", "-76.9", "60", "985")+
		placemark("not-a-dtg", "25.1", "-78.0", "70", "970")+
		placemark("2024090306", "25.8", "-79.1", "80", "960")+
		trackKMLFooter)
	srv := newIndexServer(t, kmz)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	client := New(srv.URL+"/index.kml", 5*time.Second, logger)
	entries, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 4, "three good placemarks plus the advisory entry")
	assert.Equal(t, 1, strings.Count(logs.String(), "skipping malformed track placemark"))
}

func TestFetchSkipsWeakSystems(t *testing.T) {
	// The wsp folder and the ExtendedData-less invest are both skipped, so a
	// feed with no real storms yields an empty, successful batch.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
<Folder id="wsp34"><name>Wind Speed Probabilities</name></Folder>
<Folder id="at1"><name>Invest</name></Folder>
</Document>
</kml>`)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, slog.New(slog.DiscardHandler))
	entries, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchIndexFailureIsHard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone fishing", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, slog.New(slog.DiscardHandler))
	_, err := client.Fetch(context.Background())
	require.Error(t, err)
}

func TestFetchSkipsStormWithUnreachableTrack(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/index.kml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexKML(srv.URL+"/missing.kmz"))
	})

	var logs bytes.Buffer
	client := New(srv.URL+"/index.kml", 5*time.Second, slog.New(slog.NewTextHandler(&logs, nil)))
	entries, err := client.Fetch(context.Background())
	require.NoError(t, err, "a broken storm must not fail the source")
	assert.Empty(t, entries)
	assert.Contains(t, logs.String(), "skipping storm")
}

func TestParseAdvisoryTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"11:00 PM EDT September 25, 2024", time.Date(2024, 9, 26, 3, 0, 0, 0, time.UTC)},
		{"8:00 AM CDT July 4, 2024", time.Date(2024, 7, 4, 13, 0, 0, 0, time.UTC)},
		{"4:00 PM CHST May 20, 2024", time.Date(2024, 5, 20, 6, 0, 0, 0, time.UTC)},
		{"12:00 PM UTC January 2, 2025", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAdvisoryTime(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown zone", func(t *testing.T) {
		_, err := parseAdvisoryTime("11:00 PM XYZ September 25, 2024")
		require.Error(t, err)
	})
}
