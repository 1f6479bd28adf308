package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// RegressionHorizons are the lead times, in hours from the reference time,
// that the served regression model predicts.
var RegressionHorizons = []int{12, 18, 24, 30, 36}

// featureCount is the width of one model timestep.
const featureCount = 11

// Feature column indices, matching the scaler artifact.
const (
	featLat = iota
	featLon
	featMaxWind
	featDeltaWind
	featMinPressure
	featZonalSpeed
	featMeridionalSpeed
	featYear
	featMonth
	featDay
	featHour
)

// inputOffsets are the hours back from the reference time whose entries
// form the model input window. Six entries yield five consecutive pairs.
var inputOffsets = []int{0, 6, 12, 18, 24, 30}

// Scorer sends scaled feature windows to a served regression model and
// returns one predicted track per instance. Each prediction holds one
// scaled [lat, lon, wind] row per regression horizon.
type Scorer interface {
	Score(ctx context.Context, instances [][][]float64) ([][][]float64, error)
}

// Scaler is the min-max feature scaler exported from model training.
type Scaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// LoadScaler reads a scaler artifact from disk.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler artifact: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scaler artifact: %w", err)
	}
	if len(s.Min) != featureCount || len(s.Max) != featureCount {
		return nil, fmt.Errorf("scaler artifact has %d/%d features, want %d", len(s.Min), len(s.Max), featureCount)
	}
	return &s, nil
}

// Transform scales one feature vector into the model's input space.
func (s *Scaler) Transform(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		span := s.Max[i] - s.Min[i]
		if span == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - s.Min[i]) / span
	}
	return out
}

// Inverse maps one scaled model output back to the original unit of the
// given feature column.
func (s *Scaler) Inverse(feature int, scaled float64) float64 {
	return scaled*(s.Max[feature]-s.Min[feature]) + s.Min[feature]
}

// Regressor produces track forecasts from a served regression model.
type Regressor struct {
	scorer   Scorer
	scaler   *Scaler
	modelTag string
	logger   *slog.Logger
}

// NewRegressor creates a regression forecaster.
func NewRegressor(scorer Scorer, scaler *Scaler, modelTag string, logger *slog.Logger) *Regressor {
	return &Regressor{scorer: scorer, scaler: scaler, modelTag: modelTag, logger: logger}
}

// featureVector derives one model timestep from a track entry and the
// entry before it. Wind change is normalized to a 12 hour rate, motion to
// degrees per hour. Zonal motion is east-west (longitude), meridional is
// north-south (latitude).
func featureVector(cur, prev domain.TrackEntry) []float64 {
	hours := cur.Time.Sub(prev.Time).Hours()
	pressure := 0.0
	if cur.Pressure != nil {
		pressure = *cur.Pressure
	}
	return []float64{
		featLat:             cur.Lat,
		featLon:             cur.Lon,
		featMaxWind:         float64(cur.WindSpeed),
		featDeltaWind:       float64(cur.WindSpeed-prev.WindSpeed) / (hours / 12),
		featMinPressure:     pressure,
		featZonalSpeed:      (cur.Lon - prev.Lon) / hours,
		featMeridionalSpeed: (cur.Lat - prev.Lat) / hours,
		featYear:            float64(cur.Time.Year()),
		featMonth:           float64(cur.Time.Month()),
		featDay:             float64(cur.Time.Day()),
		featHour:            float64(cur.Time.Hour()),
	}
}

// referenceTime walks back through the storm history, most recent first,
// until it finds an entry on a synoptic hour. Advisory entries can land on
// irregular times, but the model input pattern is fixed to the six-hourly
// cycle.
func referenceTime(entries []domain.TrackEntry) (time.Time, bool) {
	for _, e := range entries {
		switch e.Time.Hour() {
		case 0, 6, 12, 18:
			return e.Time, true
		}
	}
	return time.Time{}, false
}

// inputWindow selects the six entries at the model's expected offsets from
// the reference time, most recent first. It reports false when the history
// does not cover the full window.
func inputWindow(entries []domain.TrackEntry, reference time.Time) ([]domain.TrackEntry, bool) {
	byTime := make(map[int64]domain.TrackEntry, len(entries))
	for _, e := range entries {
		byTime[e.Time.Unix()] = e
	}
	window := make([]domain.TrackEntry, 0, len(inputOffsets))
	for _, offset := range inputOffsets {
		e, ok := byTime[reference.Add(-time.Duration(offset)*time.Hour).Unix()]
		if !ok {
			return nil, false
		}
		window = append(window, e)
	}
	return window, true
}

// ForecastStorm runs the regression model for one storm. Storms whose
// history cannot fill the input window return no results and no error;
// the caller decides whether a skipped storm matters.
func (r *Regressor) ForecastStorm(ctx context.Context, storm domain.StormSnapshot) ([]domain.ForecastResult, error) {
	reference, ok := referenceTime(storm.Entries)
	if !ok {
		r.logger.Warn("no synoptic-hour entry in history, skipping storm", "storm", storm.ID)
		return nil, nil
	}
	window, ok := inputWindow(storm.Entries, reference)
	if !ok {
		r.logger.Warn("history does not cover the model input window, skipping storm",
			"storm", storm.ID, "reference", reference)
		return nil, nil
	}

	instance := make([][]float64, 0, len(window)-1)
	for i := 0; i < len(window)-1; i++ {
		instance = append(instance, r.scaler.Transform(featureVector(window[i], window[i+1])))
	}

	predictions, err := r.scorer.Score(ctx, [][][]float64{instance})
	if err != nil {
		return nil, fmt.Errorf("score storm %s: %w", storm.ID, err)
	}
	if len(predictions) != 1 || len(predictions[0]) != len(RegressionHorizons) {
		return nil, fmt.Errorf("storm %s: unexpected prediction shape", storm.ID)
	}

	results := make([]domain.ForecastResult, 0, len(RegressionHorizons))
	for i, horizon := range RegressionHorizons {
		row := predictions[0][i]
		if len(row) < 3 {
			return nil, fmt.Errorf("storm %s: prediction row %d has %d values, want 3", storm.ID, i, len(row))
		}
		results = append(results, domain.ForecastResult{
			StormID:       storm.ID,
			HorizonHours:  horizon,
			Lat:           r.scaler.Inverse(featLat, row[0]),
			Lon:           r.scaler.Inverse(featLon, row[1]),
			WindSpeed:     r.scaler.Inverse(featMaxWind, row[2]),
			PredictedTime: reference.Add(time.Duration(horizon) * time.Hour),
			ModelTag:      r.modelTag,
		})
	}
	return results, nil
}

// ForecastAll runs the regression model over every storm in the batch,
// skipping storms with insufficient history.
func (r *Regressor) ForecastAll(ctx context.Context, storms []domain.StormSnapshot) ([]domain.ForecastResult, error) {
	var all []domain.ForecastResult
	for _, storm := range storms {
		results, err := r.ForecastStorm(ctx, storm)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return all, nil
}
