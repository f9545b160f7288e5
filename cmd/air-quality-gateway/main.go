package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/air-quality-gateway/internal/api/http"
	"github.com/i474232898/air-quality-gateway/internal/aqi"
	"github.com/i474232898/air-quality-gateway/internal/aqi/providers"
	"github.com/i474232898/air-quality-gateway/internal/cache"
	"github.com/i474232898/air-quality-gateway/internal/config"
	"github.com/i474232898/air-quality-gateway/internal/logging"
	"github.com/i474232898/air-quality-gateway/internal/scheduler"
)

const appName = "air-quality-gateway"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.AppEnv, cfg.LogLevel, appName)
	slog.SetDefault(log)

	// Shared HTTP client for outbound provider calls. A zero timeout leaves
	// the transport defaults in charge.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	gwCfg := aqi.Config{
		Source:            providers.NewWAQIProvider(httpClient, cfg.WAQIBaseURL, cfg.WAQIToken),
		SearchDetailLimit: cfg.SearchDetailLimit,
		TTL:               cfg.CacheTTL,
		Logger:            log,
	}

	openWeather := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherGeoBaseURL, cfg.OpenWeatherDataBaseURL, cfg.OpenWeatherAPIKey)
	gwCfg.Geocoder = openWeather
	if cfg.FallbackEnabled {
		gwCfg.Fallback = openWeather
	}

	if cfg.GoogleGeocodingAPIKey != "" {
		gwCfg.Places = providers.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey)
	}

	// Redis lets several instances share one cache; default is in-process.
	if cfg.RedisURL != "" {
		client, err := cache.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		gwCfg.Readings = cache.NewRedis[aqi.Reading](client, cache.DefaultRedisPrefix+":station", cfg.CacheTTL)
		gwCfg.Searches = cache.NewRedis[[]aqi.Reading](client, cache.DefaultRedisPrefix+":search", cfg.CacheTTL)
	}

	gateway := aqi.NewGateway(gwCfg)

	// Keep configured locations warm.
	sched := scheduler.New(cfg.WarmLocations, cfg.WarmInterval, gateway, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, gateway)

	go func() {
		log.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
