package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings are process level knobs read from the environment.
type Settings struct {
	ConfigPath  string        `env:"HOSTEL_CONFIG" envDefault:"hostel.yaml"`
	LogLevel    string        `env:"HOSTEL_LOG_LEVEL" envDefault:"info"`
	ZoneOffset  time.Duration `env:"HOSTEL_ZONE_OFFSET" envDefault:"7h"`
	MetricsAddr string        `env:"HOSTEL_METRICS_ADDR"`
	ServiceName string        `env:"OTEL_SERVICE_NAME" envDefault:"hostel"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// Level maps LogLevel onto a slog level. Unknown values select info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
