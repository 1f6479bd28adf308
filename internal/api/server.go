// Package api exposes the live snapshot, forecast operations, and
// operational endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/forecast"
)

// Ingestor triggers ingest cycles and reports readiness.
type Ingestor interface {
	Run(ctx context.Context) (domain.IngestResult, error)
	CheckReadiness(ctx context.Context) error
}

// Forecaster produces per-storm forecast outcomes for the live snapshot.
type Forecaster interface {
	ForecastAll(ctx context.Context, storms []domain.StormSnapshot) []forecast.StormOutcome
}

// SnapshotStore reads the live snapshot and the forecast cache.
type SnapshotStore interface {
	LiveStorms(ctx context.Context) ([]domain.TrackEntry, error)
	SaveForecasts(ctx context.Context, results []domain.ForecastResult, at time.Time) error
	LatestForecasts(ctx context.Context) ([]domain.ForecastResult, error)
}

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	ingestor   Ingestor
	forecaster Forecaster
	store      SnapshotStore
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates the API server with all routes mounted.
func NewServer(addr string, ingestor Ingestor, forecaster Forecaster, store SnapshotStore, clk clockwork.Clock, logger *slog.Logger) *Server {
	s := &Server{
		ingestor:   ingestor,
		forecaster: forecaster,
		store:      store,
		clock:      clk,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/live-storms", s.handleLiveStorms)
	r.Post("/update", s.handleUpdate)
	r.Get("/forecast-live-storms", s.handleForecastLiveStorms)
	r.Get("/forecasts", s.handleForecasts)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// liveEntry is a track entry with the derived display units attached.
type liveEntry struct {
	domain.TrackEntry
	WindSpeedMPH float64 `json:"wind_speed_mph"`
	WindSpeedKPH float64 `json:"wind_speed_kph"`
}

func toLiveEntry(e domain.TrackEntry) liveEntry {
	return liveEntry{
		TrackEntry:   e,
		WindSpeedMPH: round1(float64(e.WindSpeed) * domain.MPHPerKnot),
		WindSpeedKPH: round1(float64(e.WindSpeed) * domain.KPHPerKnot),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *Server) handleLiveStorms(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.LiveStorms(r.Context())
	if err != nil {
		s.fail(w, "load live storms", err)
		return
	}
	out := make([]liveEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLiveEntry(e))
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingestor.Run(r.Context())
	if err != nil {
		s.fail(w, "ingest cycle", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"fingerprint": result.Fingerprint,
		"is_new":      result.IsNew,
		"entries":     result.Entries,
	})
}

// forecastResponse lists successful forecasts alongside per-storm errors.
// A partially failed batch is a 200: callers inspect the errors list.
type forecastResponse struct {
	Forecasts []domain.ForecastResult `json:"forecasts"`
	Errors    []stormError            `json:"errors,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

type stormError struct {
	StormID string `json:"id"`
	Error   string `json:"error"`
}

func (s *Server) handleForecastLiveStorms(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.LiveStorms(r.Context())
	if err != nil {
		s.fail(w, "load live storms", err)
		return
	}
	storms := domain.GroupByStorm(entries)
	if len(storms) == 0 {
		s.respond(w, http.StatusOK, forecastResponse{
			Forecasts: []domain.ForecastResult{},
			Message:   "no storms currently active",
		})
		return
	}

	outcomes := s.forecaster.ForecastAll(r.Context(), storms)
	resp := forecastResponse{Forecasts: []domain.ForecastResult{}}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			resp.Errors = append(resp.Errors, stormError{StormID: outcome.StormID, Error: outcome.Err.Error()})
			continue
		}
		resp.Forecasts = append(resp.Forecasts, outcome.Results...)
	}

	if len(resp.Forecasts) > 0 {
		if err := s.store.SaveForecasts(r.Context(), resp.Forecasts, s.clock.Now()); err != nil {
			s.logger.Error("caching forecasts failed", "error", err)
		}
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.LatestForecasts(r.Context())
	if err != nil {
		s.fail(w, "load cached forecasts", err)
		return
	}
	if results == nil {
		results = []domain.ForecastResult{}
	}
	s.respond(w, http.StatusOK, forecastResponse{Forecasts: results})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestor.CheckReadiness(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	s.respond(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
