package report

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

func TestRender(t *testing.T) {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	results := []domain.ForecastResult{
		{StormID: "ep052024", HorizonHours: 12, Lat: 15.6, Lon: -135.2, WindSpeed: 60, PredictedTime: base.Add(12 * time.Hour)},
		{StormID: "al092024", HorizonHours: 24, Lat: 28.1, Lon: -82.4, WindSpeed: 90, PredictedTime: base.Add(24 * time.Hour)},
		{StormID: "al092024", HorizonHours: 12, Lat: 27.0, Lon: -81.2, WindSpeed: 100, PredictedTime: base.Add(12 * time.Hour)},
	}

	html, err := Render(results)
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Storm Forecast Report</h1>")
	assert.Contains(t, html, "<h2>al092024</h2>")
	assert.Contains(t, html, "<h2>ep052024</h2>")
	assert.Less(t, strings.Index(html, "al092024"), strings.Index(html, "ep052024"),
		"storm sections are ordered by id")

	// 100 kt at 12 hours sorts before 90 kt at 24 hours.
	assert.Less(t, strings.Index(html, "115.08"), strings.Index(html, "103.57"),
		"rows within a storm are ordered by horizon")

	assert.Contains(t, html, "2024-09-04 00:00 UTC")
	assert.Contains(t, html, "27.00, -81.20")
	assert.NotContains(t, html, "No storms currently active.")
}

func TestRenderEmpty(t *testing.T) {
	html, err := Render(nil)
	require.NoError(t, err)
	assert.Contains(t, html, "No storms currently active.")
	assert.NotContains(t, html, "<h2>")
}

func TestSendRequiresRecipients(t *testing.T) {
	m := NewMailer("localhost", 587, "user", "pass", "reports@example.com", slog.New(slog.DiscardHandler))
	err := m.Send(nil, "Storm Forecast Report", "<html></html>")
	require.Error(t, err)
}
