package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15*time.Minute, cfg.IngestInterval)
	assert.Equal(t, "cyclone.db", cfg.DBPath)
	assert.Equal(t, 6*time.Hour, cfg.HWRFInterval)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "storm-track-updates", cfg.KafkaTopic)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, 5, cfg.ForecastRetries)
	assert.Equal(t, []int{12, 24, 36, 48, 72}, cfg.ForecastHorizons)
	assert.Equal(t, 28, cfg.HistoryLimit)
	assert.True(t, cfg.ReflectionEnabled)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("FORECAST_HORIZONS", "6,12")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REFLECTION_ENABLED", "false")
	t.Setenv("INGEST_INTERVAL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []int{6, 12}, cfg.ForecastHorizons)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.ReflectionEnabled)
	assert.Equal(t, 5*time.Minute, cfg.IngestInterval)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero retries", "FORECAST_RETRIES", "0"},
		{"negative interval", "INGEST_INTERVAL", "-1m"},
		{"zero fetch timeout", "FETCH_TIMEOUT", "0s"},
		{"negative horizon", "FORECAST_HORIZONS", "12,-6"},
		{"zero shutdown timeout", "SHUTDOWN_TIMEOUT", "0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
