package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Feeds   FeedsConfig
	Catalog CatalogConfig
	DB      DatabaseConfig
	Client  ClientConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	Env       string // "production" disables synthetic alerts
	RateLimit int    // requests per second, 0 disables
}

type FeedsConfig struct {
	LiveEnabled         bool
	LiveURL             string
	LivePollInterval    time.Duration
	HistoryEnabled      bool
	HistoryURL          string
	HistoryPollInterval time.Duration
	Timeout             time.Duration
	TestMarker          string
}

type CatalogConfig struct {
	AreasPath     string
	CitiesGeoPath string
}

type DatabaseConfig struct {
	Enabled bool
	Path    string
}

// ClientConfig drives cmd/shelter-watch.
type ClientConfig struct {
	ServerURL    string
	PollInterval time.Duration
	TickInterval time.Duration
	Area         string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 3001),
			Env:       getEnv("APP_ENV", "development"),
			RateLimit: getEnvInt("RATE_LIMIT_RPS", 50),
		},
		Feeds: FeedsConfig{
			LiveEnabled:         getEnvBool("LIVE_FEED_ENABLED", true),
			LiveURL:             getEnv("LIVE_FEED_URL", "https://www.oref.org.il/WarningMessages/alert/alerts.json"),
			LivePollInterval:    getEnvDuration("LIVE_POLL_INTERVAL", 2*time.Second),
			HistoryEnabled:      getEnvBool("HISTORY_FEED_ENABLED", true),
			HistoryURL:          getEnv("HISTORY_FEED_URL", "https://www.oref.org.il/WarningMessages/History/AlertsHistory.json"),
			HistoryPollInterval: getEnvDuration("HISTORY_POLL_INTERVAL", 10*time.Second),
			Timeout:             getEnvDuration("FEED_TIMEOUT", 5*time.Second),
			TestMarker:          getEnv("FEED_TEST_MARKER", "בדיקה"),
		},
		Catalog: CatalogConfig{
			AreasPath:     getEnv("AREAS_PATH", "./data/areas.json"),
			CitiesGeoPath: getEnv("CITIES_GEO_PATH", ""),
		},
		DB: DatabaseConfig{
			Enabled: getEnvBool("EPISODE_LOG_ENABLED", true),
			Path:    getEnv("DB_PATH", "./data/episodes.db"),
		},
		Client: ClientConfig{
			ServerURL:    getEnv("WATCH_SERVER_URL", "http://localhost:3001"),
			PollInterval: getEnvDuration("WATCH_POLL_INTERVAL", 2000*time.Millisecond),
			TickInterval: getEnvDuration("WATCH_TICK_INTERVAL", 100*time.Millisecond),
			Area:         getEnv("WATCH_AREA", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether dev-only endpoints must be disabled.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Feeds.LivePollInterval < 500*time.Millisecond {
		return fmt.Errorf("live poll interval must be at least 500ms")
	}
	if c.Feeds.HistoryPollInterval < time.Second {
		return fmt.Errorf("history poll interval must be at least 1s")
	}
	if c.Feeds.Timeout <= 0 {
		return fmt.Errorf("feed timeout must be positive")
	}
	if c.Client.PollInterval <= 0 || c.Client.TickInterval <= 0 {
		return fmt.Errorf("client intervals must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.Server.RateLimit)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
