package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
	"github.com/i474232898/air-quality-gateway/internal/aqi/providers"
	"github.com/i474232898/air-quality-gateway/internal/logging"
)

type AppConfig struct {
	// API keys are not validated locally; providers reject bad keys.
	WAQIToken             string
	OpenWeatherAPIKey     string
	GoogleGeocodingAPIKey string

	WAQIBaseURL            string
	OpenWeatherGeoBaseURL  string
	OpenWeatherDataBaseURL string

	CacheTTL    time.Duration
	HTTPTimeout time.Duration // 0 = no client-side timeout
	RedisURL    string        // empty = in-memory cache

	FallbackEnabled   bool
	SearchDetailLimit int

	// Cache warm-up.
	WarmInterval  time.Duration
	WarmLocations []NamedLocation

	LogLevel slog.Level
	AppEnv   string
	Port     string
}

// NamedLocation is a point whose reading is kept warm in the cache.
type NamedLocation struct {
	Name            string `yaml:"name"`
	aqi.Coordinates `yaml:",inline"`
}

type locationsFile struct {
	Locations []NamedLocation `yaml:"locations"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.WAQIToken = os.Getenv("WAQI_TOKEN")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.GoogleGeocodingAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")

	cfg.WAQIBaseURL = getenvDefault("WAQI_BASE_URL", providers.DefaultWAQIBaseURL)
	cfg.OpenWeatherGeoBaseURL = getenvDefault("OPENWEATHER_GEO_BASE_URL", providers.DefaultOpenWeatherGeoURL)
	cfg.OpenWeatherDataBaseURL = getenvDefault("OPENWEATHER_DATA_BASE_URL", providers.DefaultOpenWeatherDataURL)

	var err error
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	// Default just under the TTL so warmed entries never expire between runs.
	if cfg.WarmInterval, err = getenvDuration("WARM_INTERVAL", (cfg.CacheTTL - cfg.CacheTTL/5).String()); err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 && cfg.WarmInterval >= cfg.CacheTTL {
		slog.Warn("WARM_INTERVAL is not shorter than CACHE_TTL; warmed entries will expire between runs",
			"warm_interval", cfg.WarmInterval, "cache_ttl", cfg.CacheTTL)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.FallbackEnabled = getenvBool("FALLBACK_ENABLED", false)
	cfg.SearchDetailLimit = getenvInt("SEARCH_DETAIL_LIMIT", 0)

	locs, err := parseLocations(os.Getenv("WARM_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("LOCATIONS_FILE"); path != "" {
		fromFile, err := loadLocationsFile(path)
		if err != nil {
			return nil, err
		}
		locs = append(locs, fromFile...)
	}
	cfg.WarmLocations = locs

	cfg.LogLevel = logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// parseLocations reads "lat,lon;lat,lon".
func parseLocations(s string) ([]NamedLocation, error) {
	var locs []NamedLocation
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS entry %q: want lat,lon", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in WARM_LOCATIONS entry %q: %w", pair, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in WARM_LOCATIONS entry %q: %w", pair, err)
		}
		locs = append(locs, NamedLocation{
			Name:        pair,
			Coordinates: aqi.Coordinates{Latitude: lat, Longitude: lon},
		})
	}
	return locs, nil
}

func loadLocationsFile(path string) ([]NamedLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading LOCATIONS_FILE: %w", err)
	}
	var f locationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing LOCATIONS_FILE: %w", err)
	}
	return f.Locations, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
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

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
