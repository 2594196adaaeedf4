package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`

	// LogPretty switches to zerolog's console writer.
	LogPretty bool

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	NASAAPIKey        string
	GeocoderAPIKey    string

	ProviderTimeout time.Duration `validate:"gt=0"`
	RetryBackoff    time.Duration `validate:"gte=0"`

	WeatherTTL    time.Duration `validate:"gt=0"`
	AirQualityTTL time.Duration `validate:"gt=0"`
	SoilTTL       time.Duration `validate:"gt=0"`
	SatelliteTTL  time.Duration `validate:"gt=0"`

	// RefreshInterval controls how often hot regions are refreshed.
	RefreshInterval time.Duration `validate:"gt=0"`
	HotWindow       time.Duration `validate:"gt=0"`
	SessionTTL      time.Duration `validate:"gte=0"`

	RegionsFile string
	IntentsFile string

	// CacheDBPath enables the SQLite cache backend when set.
	CacheDBPath string

	// ForecastSeed makes synthesized forecasts reproducible; 0 seeds from time.
	ForecastSeed int64

	DefaultSoilMoisture float64 `validate:"gte=0,lte=100"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*AppConfig, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogPretty:         getenvBool("LOG_PRETTY", false),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		NASAAPIKey:        os.Getenv("NASA_API_KEY"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),
		RegionsFile:       os.Getenv("REGIONS_FILE"),
		IntentsFile:       os.Getenv("INTENTS_FILE"),
		CacheDBPath:       os.Getenv("CACHE_DB_PATH"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"PROVIDER_TIMEOUT", "8s", &cfg.ProviderTimeout},
		{"RETRY_BACKOFF", "250ms", &cfg.RetryBackoff},
		{"WEATHER_TTL", "600s", &cfg.WeatherTTL},
		{"AIR_QUALITY_TTL", "900s", &cfg.AirQualityTTL},
		{"SOIL_TTL", "1800s", &cfg.SoilTTL},
		{"SATELLITE_TTL", "6h", &cfg.SatelliteTTL},
		{"REFRESH_INTERVAL", "45s", &cfg.RefreshInterval},
		{"HOT_WINDOW", "30m", &cfg.HotWindow},
		{"SESSION_TTL", "2h", &cfg.SessionTTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	seed, err := strconv.ParseInt(getenvDefault("FORECAST_SEED", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_SEED: %w", err)
	}
	cfg.ForecastSeed = seed

	soil, err := strconv.ParseFloat(getenvDefault("DEFAULT_SOIL_MOISTURE", "45"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_SOIL_MOISTURE: %w", err)
	}
	cfg.DefaultSoilMoisture = soil

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
