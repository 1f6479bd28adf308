// Package forecast generates storm track forecasts by prompting a chat
// model per storm and horizon, extracting the structured reply, and
// optionally running a quality-check reflection pass over the batch.
// A regression scorer backed by a served model provides a second,
// non-conversational forecast path over the same history.
package forecast

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// SystemMessage primes every conversation before the first prompt.
const SystemMessage = "Please act as a weather forecaster and a helpful assistant. " +
	"Data provided are real time and from official sources including NOAA."

var forecastTmpl = template.Must(template.New("forecast").Parse(
	`Please provide a forecast for {{.Horizon}} hours in the future from the most recent time from the storm.
This forecast should be based on historical knowledge which includes but is not limited to storms with similar
tracks and intensities, time of year of the storm, geographical coordinates, and climate change that may have
occurred since your previous training.
The response will be a JSON object with these attributes:
    "lat" which is the predicted latitude in decimal degrees.
    "lon" which is the predicted longitude in decimal degrees.
    "wind_speed" which is the predicted maximum sustained wind speed in knots.

Table 1. The historical records that include columns representing measurements for the storm.
- The wind_speed column is in knots representing the maximum sustained wind speeds.
- The lat and lon are the geographic coordinates in decimal degrees.
- time is sorted and the most recent time is the first entry.
{{.History}}
`))

var reflectionTmpl = template.Must(template.New("reflection").Parse(
	`Please quality check the response. The following are requirements,
- The responses are numbers and not ranges.
- They align with other forecast hours provided.
This is an aggregated forecast produced by you and included for reference,
{{.Forecast}}

Respond with either "True" or "False" based on the quality check. If it's False, provide a more accurate
forecast for the original {{.Horizon}} hours in the future. This prompt is given every time and it's
possible that the original response is accurate.
`))

// Builder renders forecast and reflection prompts for one storm.
type Builder struct {
	// HistoryLimit caps how many recent entries are embedded in the
	// prompt. Zero means no cap.
	HistoryLimit int
}

// historyTable renders the storm history as a JSON array, most recent
// first, truncated to the configured limit.
func (b Builder) historyTable(snapshot domain.StormSnapshot) (string, error) {
	entries := snapshot.Entries
	if b.HistoryLimit > 0 && len(entries) > b.HistoryLimit {
		entries = entries[:b.HistoryLimit]
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render history table: %w", err)
	}
	return string(data), nil
}

// ForecastPrompt renders the per-horizon forecast prompt for a storm.
func (b Builder) ForecastPrompt(snapshot domain.StormSnapshot, horizonHours int) (string, error) {
	history, err := b.historyTable(snapshot)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	err = forecastTmpl.Execute(&sb, struct {
		Horizon int
		History string
	}{Horizon: horizonHours, History: history})
	if err != nil {
		return "", fmt.Errorf("render forecast prompt: %w", err)
	}
	return sb.String(), nil
}

// ReflectionPrompt renders the quality-check prompt. forecastSummary is
// the aggregated first-pass forecast for the whole storm, giving the model
// cross-horizon context when judging a single horizon's reply.
func (b Builder) ReflectionPrompt(forecastSummary string, horizonHours int) (string, error) {
	var sb strings.Builder
	err := reflectionTmpl.Execute(&sb, struct {
		Horizon  int
		Forecast string
	}{Horizon: horizonHours, Forecast: forecastSummary})
	if err != nil {
		return "", fmt.Errorf("render reflection prompt: %w", err)
	}
	return sb.String(), nil
}
