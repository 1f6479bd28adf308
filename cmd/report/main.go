// Command report runs the regression model over the current live storms
// and mails the rendered forecast tables. It is intended to run on a
// schedule, after the ingest cycle has refreshed the snapshot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/adapter/scoring"
	"github.com/couchcryptid/cyclone-track-service/internal/config"
	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/forecast"
	"github.com/couchcryptid/cyclone-track-service/internal/observability"
	"github.com/couchcryptid/cyclone-track-service/internal/report"
	"github.com/couchcryptid/cyclone-track-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("report run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.ScoringURL == "" || cfg.ScalerPath == "" {
		return fmt.Errorf("SCORING_URL and SCALER_PATH must be set for the report job")
	}
	if cfg.SMTPHost == "" || cfg.ReportSender == "" || len(cfg.ReportRecipients) == 0 {
		return fmt.Errorf("SMTP_HOST, REPORT_SENDER and REPORT_RECIPIENTS must be set for the report job")
	}

	scaler, err := forecast.LoadScaler(cfg.ScalerPath)
	if err != nil {
		return err
	}
	scorer := scoring.New(cfg.ScoringURL, cfg.ScoringModel, cfg.FetchTimeout)
	regressor := forecast.NewRegressor(scorer, scaler, cfg.ScoringModel, logger)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	entries, err := db.LiveStorms(ctx)
	if err != nil {
		return fmt.Errorf("load live storms: %w", err)
	}
	storms := domain.GroupByStorm(entries)
	logger.Info("running regression forecasts", "storms", len(storms))

	results, err := regressor.ForecastAll(ctx, storms)
	if err != nil {
		return err
	}

	html, err := report.Render(results)
	if err != nil {
		return err
	}

	mailer := report.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.ReportSender, logger)
	subject := "Storm Forecast Report " + time.Now().UTC().Format("2006-01-02")
	return mailer.Send(cfg.ReportRecipients, subject, html)
}
