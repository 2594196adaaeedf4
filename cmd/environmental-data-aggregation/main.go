package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/environmental-data-aggregation/internal/api/http"
	"github.com/i474232898/environmental-data-aggregation/internal/cache"
	"github.com/i474232898/environmental-data-aggregation/internal/config"
	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/environment/providers"
	"github.com/i474232898/environmental-data-aggregation/internal/forecast"
	"github.com/i474232898/environmental-data-aggregation/internal/logging"
	"github.com/i474232898/environmental-data-aggregation/internal/query"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
	"github.com/i474232898/environmental-data-aggregation/internal/scheduler"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", false, os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stdout)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load regions")
	}

	router, err := loadRouter(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load intents")
	}

	// Shared HTTP client for outbound provider calls. Per-call deadlines come
	// from the engine; this is only a backstop.
	httpClient := &http.Client{
		Timeout: 2 * cfg.ProviderTimeout,
	}
	clients := buildClients(cfg, httpClient, logging.Component(logger, "provider"))

	// Cache, optionally backed by SQLite so restarts keep serving data.
	cacheOpts := []cache.Option{
		cache.WithLogger(logging.Component(logger, "cache")),
		cache.WithFetchTimeout(2*cfg.ProviderTimeout + cfg.RetryBackoff + time.Second),
	}
	if cfg.CacheDBPath != "" {
		backend, err := cache.OpenSQLite(cfg.CacheDBPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.CacheDBPath).Msg("failed to open cache database")
		}
		cacheOpts = append(cacheOpts, cache.WithBackend(backend))
	}
	store := cache.New[environment.Payload](cacheOpts...)

	var synthOpts []forecast.Option
	if cfg.ForecastSeed != 0 {
		synthOpts = append(synthOpts, forecast.WithStep(forecast.NewSeededStep(cfg.ForecastSeed)))
	}

	engineCfg := environment.DefaultConfig()
	engineCfg.ProviderTimeout = cfg.ProviderTimeout
	engineCfg.RetryBackoff = cfg.RetryBackoff
	engineCfg.TTLs[environment.MetricSetWeather] = cfg.WeatherTTL
	engineCfg.TTLs[environment.MetricSetWeatherSecondary] = cfg.WeatherTTL
	engineCfg.TTLs[environment.MetricSetForecast] = cfg.WeatherTTL
	engineCfg.TTLs[environment.MetricSetAirQuality] = cfg.AirQualityTTL
	engineCfg.TTLs[environment.MetricSetSoil] = cfg.SoilTTL
	engineCfg.TTLs[environment.MetricSetSatellite] = cfg.SatelliteTTL
	engineCfg.DefaultSoilMoisture = cfg.DefaultSoilMoisture
	engineCfg.HotWindow = cfg.HotWindow
	engineCfg.RefreshAhead = cfg.RefreshInterval

	// Core engine orchestrating providers, cache, synthesizer and advisors.
	engine := environment.NewEngine(clients,
		environment.WithConfig(engineCfg),
		environment.WithCache(store),
		environment.WithSynthesizer(forecast.New(synthOpts...)),
		environment.WithRouter(router),
		environment.WithLogger(logging.Component(logger, "engine")),
	)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close cache")
		}
	}()

	// Scheduler that keeps recently requested regions warm.
	sched := scheduler.New(engine, cfg.RefreshInterval, 2*cfg.ProviderTimeout+cfg.RetryBackoff, logging.Component(logger, "scheduler"))
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	sessions := environment.NewSessions(engine, cfg.SessionTTL)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "environmental-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "environmental-data-aggregation",
			"providers": providerNames(engine.Clients()),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, engine, catalog, sessions)

	go func() {
		logger.Info().Str("port", cfg.Port).Int("providers", len(clients)).Msg("http server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

func loadCatalog(cfg *config.AppConfig) (*region.Catalog, error) {
	catalog := region.DefaultCatalog()
	if cfg.RegionsFile != "" {
		var err error
		if catalog, err = region.LoadCatalog(cfg.RegionsFile); err != nil {
			return nil, err
		}
	}

	// Names outside the catalog can only be resolved with a geocoding key.
	if g := region.NewGoogleGeocoder(cfg.GeocoderAPIKey); g != nil {
		catalog.WithGeocoder(g)
	}
	return catalog, nil
}

func loadRouter(cfg *config.AppConfig) (*query.Router, error) {
	intents, fallback := query.DefaultIntents(), query.DefaultFallback
	if cfg.IntentsFile != "" {
		var err error
		if intents, fallback, err = query.LoadIntents(cfg.IntentsFile); err != nil {
			return nil, err
		}
	}
	return query.NewRouter(intents, fallback)
}

// buildClients registers Open-Meteo sources unconditionally and keyed
// providers only when their key is configured.
func buildClients(cfg *config.AppConfig, httpClient *http.Client, logger zerolog.Logger) []environment.SourceClient {
	opts := []providers.Option{
		providers.WithHTTPClient(httpClient),
		providers.WithLogger(logger),
	}

	clients := []environment.SourceClient{
		providers.NewOpenMeteo(opts...),
		providers.NewAirQuality(opts...),
	}
	if cfg.OpenWeatherAPIKey != "" {
		clients = append(clients, providers.NewOpenWeather(cfg.OpenWeatherAPIKey, opts...))
	}
	if cfg.WeatherAPIKey != "" {
		clients = append(clients, providers.NewWeatherAPI(cfg.WeatherAPIKey, opts...))
	}
	if cfg.NASAAPIKey != "" {
		clients = append(clients, providers.NewSatellite(cfg.NASAAPIKey, opts...))
	}
	return clients
}

func providerNames(clients []environment.SourceClient) []string {
	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.Name()
	}
	return names
}
