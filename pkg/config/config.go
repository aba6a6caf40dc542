// Package config loads the benson runtime configuration.
//
// Priority: environment (BENSON_*) > JSON file > defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "BENSON_"

var ErrConfigNotFound = errors.New("config: file not found")

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Audit     AuditConfig     `koanf:"audit"`
	Ingress   IngressConfig   `koanf:"ingress"`
	Export    ExportConfig    `koanf:"export"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

type AuditConfig struct {
	Backend     string `koanf:"backend" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `koanf:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string `koanf:"postgres_dsn" validate:"required_if=Backend postgres"`
}

type IngressConfig struct {
	SeenStore     string `koanf:"seen_store" validate:"oneof=memory redis"`
	RedisAddr     string `koanf:"redis_addr" validate:"required_if=SeenStore redis"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"min=0"`
	RedisKey      string `koanf:"redis_key" validate:"required_if=SeenStore redis"`
}

type ExportConfig struct {
	Sink          string `koanf:"sink" validate:"oneof=file s3 gcs"`
	Dir           string `koanf:"dir" validate:"required_if=Sink file"`
	Bucket        string `koanf:"bucket" validate:"required_unless=Sink file"`
	Prefix        string `koanf:"prefix"`
	Region        string `koanf:"region"`
	Endpoint      string `koanf:"endpoint"`
	SigningSecret string `koanf:"signing_secret"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint" validate:"required_if=Enabled true"`
	Insecure     bool    `koanf:"insecure"`
	ServiceName  string  `koanf:"service_name" validate:"required"`
	SampleRate   float64 `koanf:"sample_rate" validate:"min=0,max=1"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"log.level":               "info",
		"log.format":              "text",
		"audit.backend":           "memory",
		"audit.sqlite_path":       "benson-audit.db",
		"audit.postgres_dsn":      "",
		"ingress.seen_store":      "memory",
		"ingress.redis_addr":      "localhost:6379",
		"ingress.redis_password":  "",
		"ingress.redis_db":        0,
		"ingress.redis_key":       "benson:ingress:admitted",
		"export.sink":             "file",
		"export.dir":              "exports",
		"export.bucket":           "",
		"export.prefix":           "",
		"export.region":           "us-east-1",
		"export.endpoint":         "",
		"export.signing_secret":   "",
		"telemetry.enabled":       false,
		"telemetry.otlp_endpoint": "localhost:4317",
		"telemetry.insecure":      false,
		"telemetry.service_name":  "benson-execution",
		"telemetry.sample_rate":   1.0,
	}
}

// Load layers defaults, the JSON file at path (when path is non-empty) and
// BENSON_* environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// envTransform maps BENSON_AUDIT_SQLITE_PATH to audit.sqlite_path: the first
// segment is the section, the remainder the key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
