// Command trackd runs the cyclone track service: it ingests live storm
// tracks from NOAA sources into a deduplicated snapshot and serves track
// data and model forecasts over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cyclone-track-service/internal/adapter/hwrf"
	kafkaadapter "github.com/couchcryptid/cyclone-track-service/internal/adapter/kafka"
	"github.com/couchcryptid/cyclone-track-service/internal/adapter/nhc"
	"github.com/couchcryptid/cyclone-track-service/internal/adapter/openai"
	"github.com/couchcryptid/cyclone-track-service/internal/adapter/rammb"
	"github.com/couchcryptid/cyclone-track-service/internal/api"
	"github.com/couchcryptid/cyclone-track-service/internal/config"
	"github.com/couchcryptid/cyclone-track-service/internal/forecast"
	"github.com/couchcryptid/cyclone-track-service/internal/ingest"
	"github.com/couchcryptid/cyclone-track-service/internal/observability"
	"github.com/couchcryptid/cyclone-track-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sources := []ingest.Source{
		nhc.New(cfg.NHCIndexURL, cfg.FetchTimeout, logger),
	}
	if cfg.HWRFListingURL != "" {
		sources = append(sources, hwrf.New(cfg.HWRFListingURL, cfg.HWRFInterval, cfg.FetchTimeout, clock, logger))
	}
	if cfg.RAMMBBaseURL != "" {
		rammbClient, err := rammb.New(cfg.RAMMBBaseURL, cfg.FetchTimeout, logger)
		if err != nil {
			logger.Error("invalid RAMMB base URL", "error", err)
			os.Exit(1)
		}
		sources = append(sources, rammbClient)
	}

	var notifier ingest.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kn := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, clock, logger)
		defer kn.Close()
		notifier = kn
		logger.Info("kafka change feed enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka change feed disabled")
	}

	ingestor := ingest.New(sources, db, notifier, clock, logger, metrics)

	completer := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.ForecastTimeout)
	orchestrator := forecast.NewOrchestrator(completer, forecast.Options{
		Model:        cfg.OpenAIModel,
		Horizons:     cfg.ForecastHorizons,
		Retries:      cfg.ForecastRetries,
		HistoryLimit: cfg.HistoryLimit,
		Reflection:   cfg.ReflectionEnabled,
		Concurrency:  cfg.ForecastConcurrency,
		ReqTimeout:   cfg.ForecastTimeout,
	}, clock, logger, metrics)

	srv := api.NewServer(cfg.HTTPAddr, ingestor, orchestrator, db, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := ingestor.RunPeriodic(ctx, cfg.IngestInterval); err != nil {
			logger.Error("ingest loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
