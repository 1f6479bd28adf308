// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DBPath string `envconfig:"DB_PATH" default:"cyclone.db"`

	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"15m"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`

	NHCIndexURL    string        `envconfig:"NHC_INDEX_URL" default:"https://www.nhc.noaa.gov/gis/kml/nhc_active.kml"`
	HWRFListingURL string        `envconfig:"HWRF_LISTING_URL" default:"https://ftp.nhc.noaa.gov/atcf/btk/"`
	HWRFInterval   time.Duration `envconfig:"HWRF_INTERVAL" default:"6h"`
	RAMMBBaseURL   string        `envconfig:"RAMMB_BASE_URL" default:""`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"storm-track-updates"`

	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIKey           string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel         string        `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	ForecastRetries     int           `envconfig:"FORECAST_RETRIES" default:"5"`
	ForecastHorizons    []int         `envconfig:"FORECAST_HORIZONS" default:"12,24,36,48,72"`
	HistoryLimit        int           `envconfig:"HISTORY_LIMIT" default:"28"`
	ReflectionEnabled   bool          `envconfig:"REFLECTION_ENABLED" default:"true"`
	ForecastConcurrency int           `envconfig:"FORECAST_CONCURRENCY" default:"4"`
	ForecastTimeout     time.Duration `envconfig:"FORECAST_TIMEOUT" default:"2m"`

	ScoringURL   string `envconfig:"SCORING_URL" default:""`
	ScoringModel string `envconfig:"SCORING_MODEL" default:"hurricane"`
	ScalerPath   string `envconfig:"SCALER_PATH" default:""`

	SMTPHost         string   `envconfig:"SMTP_HOST" default:""`
	SMTPPort         int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername     string   `envconfig:"SMTP_USERNAME" default:""`
	SMTPPassword     string   `envconfig:"SMTP_PASSWORD" default:""`
	ReportSender     string   `envconfig:"REPORT_SENDER" default:""`
	ReportRecipients []string `envconfig:"REPORT_RECIPIENTS"`
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.IngestInterval <= 0 {
		return errors.New("INGEST_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.ForecastRetries < 1 {
		return errors.New("FORECAST_RETRIES must be at least 1")
	}
	if len(c.ForecastHorizons) == 0 {
		return errors.New("FORECAST_HORIZONS must name at least one horizon")
	}
	for _, h := range c.ForecastHorizons {
		if h <= 0 {
			return fmt.Errorf("forecast horizon %d must be positive", h)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
