package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables. Query parameters travel on the
// command line; everything ambient (endpoints, tuning, telemetry) lives here.
type Config struct {
	STACBaseURL     string `envconfig:"STAC_BASE_URL" default:"https://planetarycomputer.microsoft.com/api/stac/v1"`
	SASBaseURL      string `envconfig:"SAS_BASE_URL"`
	SubscriptionKey string `envconfig:"PC_SUBSCRIPTION_KEY"`

	BackoffInitial    time.Duration `envconfig:"RETRY_BACKOFF_INITIAL" default:"500ms"`
	BackoffMax        time.Duration `envconfig:"RETRY_BACKOFF_MAX" default:"30s"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"720h"`

	LogLevel   string `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath     string `envconfig:"DB_PATH"`
	WebhookURL string `envconfig:"WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"false"`
		BindAddress string `split_words:"true" default:"0.0.0.0:9464"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("GEOFETCH", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
