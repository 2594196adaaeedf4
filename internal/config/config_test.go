package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "PROVIDER_TIMEOUT", "REFRESH_INTERVAL", "FORECAST_SEED", "DEFAULT_SOIL_MOISTURE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 600*time.Second, cfg.WeatherTTL)
	assert.Equal(t, 900*time.Second, cfg.AirQualityTTL)
	assert.Equal(t, 30*time.Minute, cfg.SoilTTL)
	assert.Equal(t, 6*time.Hour, cfg.SatelliteTTL)
	assert.Equal(t, 45*time.Second, cfg.RefreshInterval)
	assert.Equal(t, int64(0), cfg.ForecastSeed)
	assert.Equal(t, 45.0, cfg.DefaultSoilMoisture)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("WEATHER_TTL", "5m")
	t.Setenv("FORECAST_SEED", "42")
	t.Setenv("CACHE_DB_PATH", "/tmp/cache.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 5*time.Minute, cfg.WeatherTTL)
	assert.Equal(t, int64(42), cfg.ForecastSeed)
	assert.Equal(t, "/tmp/cache.db", cfg.CacheDBPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PROVIDER_TIMEOUT", "soon"},
		{"PROVIDER_TIMEOUT", "-1s"},
		{"FORECAST_SEED", "abc"},
		{"DEFAULT_SOIL_MOISTURE", "120"},
		{"PORT", "http"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
