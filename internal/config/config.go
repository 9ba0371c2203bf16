package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLitePath   = "eco.db"
	defaultFeedTimeout  = 30 * time.Second
	defaultPort         = 8080
	defaultLimit        = 100
	defaultMQTTPort     = 1883
	defaultMQTTTopic    = "eco/exceedances"
	defaultMQTTClientID = "eco-monitor"
)

// Config holds environment-driven settings shared by the API and watcher.
type Config struct {
	AppEnv   string
	LogLevel slog.Level

	Driver      string
	DatabaseURL string
	SQLitePath  string

	FeedURL        string
	FeedTimeout    time.Duration
	SyncWorkers    int
	SyncInterval   time.Duration
	ThresholdsFile string
	DryRun         bool

	Port         int
	DefaultLimit int

	MQTTBroker   string
	MQTTPort     int
	MQTTTopic    string
	MQTTClientID string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return LoadFromEnv()
}

// LoadFromEnv reads configuration from the process environment only.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		AppEnv:       "dev",
		LogLevel:     slog.LevelInfo,
		Driver:       DriverPostgres,
		SQLitePath:   defaultSQLitePath,
		FeedURL:      saveecobot.DefaultURL,
		FeedTimeout:  defaultFeedTimeout,
		SyncWorkers:  1,
		Port:         defaultPort,
		DefaultLimit: defaultLimit,
		MQTTPort:     defaultMQTTPort,
		MQTTTopic:    defaultMQTTTopic,
		MQTTClientID: defaultMQTTClientID,
	}

	if v := env("APP_ENV"); v != "" {
		switch v {
		case "dev", "prod":
			cfg.AppEnv = v
		default:
			return cfg, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", v)
		}
	}

	if v := env("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}

	if v := env("DB_DRIVER"); v != "" {
		switch strings.ToLower(v) {
		case DriverPostgres, "postgresql", "pgx":
			cfg.Driver = DriverPostgres
		case DriverSQLite, "sqlite3":
			cfg.Driver = DriverSQLite
		default:
			return cfg, fmt.Errorf("invalid DB_DRIVER %q (allowed: postgres, sqlite)", v)
		}
	}

	cfg.DatabaseURL = env("DATABASE_URL")
	if cfg.Driver == DriverPostgres && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if v := env("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}

	if v := env("FEED_URL"); v != "" {
		cfg.FeedURL = v
	}

	var err error
	if cfg.FeedTimeout, err = duration("FEED_TIMEOUT", cfg.FeedTimeout); err != nil {
		return cfg, err
	}
	if cfg.SyncInterval, err = duration("SYNC_INTERVAL", 0); err != nil {
		return cfg, err
	}
	if cfg.SyncWorkers, err = positiveInt("SYNC_WORKERS", cfg.SyncWorkers); err != nil {
		return cfg, err
	}

	cfg.ThresholdsFile = env("THRESHOLDS_FILE")

	dryRun := env("DRY_RUN")
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	if env("PORT") != "" {
		if cfg.Port, err = positiveInt("PORT", cfg.Port); err != nil {
			return cfg, err
		}
	} else if cfg.Port, err = positiveInt("API_PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.DefaultLimit, err = positiveInt("API_DEFAULT_LIMIT", cfg.DefaultLimit); err != nil {
		return cfg, err
	}

	cfg.MQTTBroker = env("MQTT_BROKER")
	if cfg.MQTTPort, err = positiveInt("MQTT_PORT", cfg.MQTTPort); err != nil {
		return cfg, err
	}
	if v := env("MQTT_TOPIC"); v != "" {
		cfg.MQTTTopic = v
	}
	if v := env("MQTT_CLIENT_ID"); v != "" {
		cfg.MQTTClientID = v
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AlertsEnabled reports whether an MQTT broker is configured.
func (c Config) AlertsEnabled() bool {
	return c.MQTTBroker != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return def, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func positiveInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
