package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadSettings.
const EnvPrefix = "MSGBUS_"

// Settings holds process-level settings for a msgbus composition root.
// Values come from the environment (prefixed with EnvPrefix).
type Settings struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// ConfigFile optionally points at a YAML/JSON file read with FromFile.
	ConfigFile string `env:"CONFIG_FILE"`

	RedisURL string `env:"REDIS_URL"`

	OutboxPath         string        `env:"OUTBOX_PATH" envDefault:":memory:"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`

	// ReceiveRateLimit is events per second per receiver; 0 disables limiting.
	ReceiveRateLimit float64 `env:"RECEIVE_RATE_LIMIT" envDefault:"0"`
	ReceiveBurst     int     `env:"RECEIVE_BURST" envDefault:"1"`
}

// LoadSettings loads .env files (missing files are ignored) and then parses
// the environment into Settings. With no paths, ".env" is tried.
func LoadSettings(dotenvPaths ...string) (Settings, error) {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, path := range dotenvPaths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Level returns the parsed log level, defaulting to info.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger builds a slog.Logger writing to w in the configured format.
func (s Settings) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.Level()}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// File loads ConfigFile, or returns an empty Config when it is unset.
func (s Settings) File() (Config, error) {
	if s.ConfigFile == "" {
		return New(nil), nil
	}
	return FromFile(s.ConfigFile)
}
