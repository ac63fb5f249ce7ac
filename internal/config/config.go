package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackmichael/share-your-sound/internal/domain"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// RateLimit is a per-client request budget over a window.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// StoreDriver selects the post store: "sqlite" or "bolt".
	StoreDriver string

	// DatabasePath is the database file for the selected store.
	DatabasePath string

	// PublicDir holds the static front-end served at /.
	PublicDir string

	// ReportThreshold is the highest report count a post survives.
	ReportThreshold int

	// PostLifetime is how long a post stays on the board.
	PostLifetime time.Duration

	// SweepSchedule is the cron expression for the expiry sweeper.
	SweepSchedule string

	// PostRate limits submissions per client.
	PostRate RateLimit

	// ReportRate limits reports per client.
	ReportRate RateLimit

	// TrustProxy keys rate limits on X-Forwarded-For / X-Real-IP instead of
	// the socket peer. Only enable behind a proxy that sets those headers.
	TrustProxy bool

	// LogLevel is the minimum zerolog level.
	LogLevel zerolog.Level

	// LogFormat is "json" or "console".
	LogFormat string

	// OTLPEndpoint enables tracing when set.
	OTLPEndpoint string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, err := envInt("PORT", 3000)
	if err != nil {
		return nil, err
	}

	driver := envOrDefault("STORE_DRIVER", StoreSQLite)
	if driver != StoreSQLite && driver != StoreBolt {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: must be %q or %q", driver, StoreSQLite, StoreBolt)
	}

	defaultPath := "./share-your-sound.db"
	if driver == StoreBolt {
		defaultPath = "./share-your-sound.bolt"
	}

	threshold, err := envInt("REPORT_THRESHOLD", domain.DefaultReportThreshold)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, fmt.Errorf("invalid REPORT_THRESHOLD: must not be negative")
	}

	lifetime, err := envDuration("POST_LIFETIME", domain.DefaultPostLifetime)
	if err != nil {
		return nil, err
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("invalid POST_LIFETIME: must be positive")
	}

	postRate, err := envRateLimit("POST_RATE", RateLimit{Limit: 10, Window: 15 * time.Minute})
	if err != nil {
		return nil, err
	}

	reportRate, err := envRateLimit("REPORT_RATE", RateLimit{Limit: 20, Window: time.Hour})
	if err != nil {
		return nil, err
	}

	trustProxy, err := envBool("TRUST_PROXY", false)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(envOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	format := envOrDefault("LOG_FORMAT", "json")
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be json or console", format)
	}

	return &Config{
		Port:            port,
		StoreDriver:     driver,
		DatabasePath:    envOrDefault("DATABASE_PATH", defaultPath),
		PublicDir:       envOrDefault("PUBLIC_DIR", "./public"),
		ReportThreshold: threshold,
		PostLifetime:    lifetime,
		SweepSchedule:   envOrDefault("SWEEP_SCHEDULE", domain.DefaultSweepSchedule),
		PostRate:        postRate,
		ReportRate:      reportRate,
		TrustProxy:      trustProxy,
		LogLevel:        level,
		LogFormat:       format,
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// envRateLimit reads <prefix>_LIMIT and <prefix>_WINDOW.
func envRateLimit(prefix string, fallback RateLimit) (RateLimit, error) {
	limit, err := envInt(prefix+"_LIMIT", fallback.Limit)
	if err != nil {
		return RateLimit{}, err
	}
	window, err := envDuration(prefix+"_WINDOW", fallback.Window)
	if err != nil {
		return RateLimit{}, err
	}
	if limit <= 0 || window <= 0 {
		return RateLimit{}, fmt.Errorf("invalid %s_LIMIT/%s_WINDOW: both must be positive", prefix, prefix)
	}
	return RateLimit{Limit: limit, Window: window}, nil
}
