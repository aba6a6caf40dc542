package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benson.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "memory", cfg.Audit.Backend)
	assert.Equal(t, "memory", cfg.Ingress.SeenStore)
	assert.Equal(t, "benson:ingress:admitted", cfg.Ingress.RedisKey)
	assert.Equal(t, "file", cfg.Export.Sink)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "benson-execution", cfg.Telemetry.ServiceName)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"log": {"level": "debug", "format": "json"},
		"audit": {"backend": "sqlite", "sqlite_path": "/var/lib/benson/audit.db"},
		"ingress": {"seen_store": "redis", "redis_addr": "redis:6379", "redis_db": 2}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.Equal(t, "/var/lib/benson/audit.db", cfg.Audit.SQLitePath)
	assert.Equal(t, "redis", cfg.Ingress.SeenStore)
	assert.Equal(t, 2, cfg.Ingress.RedisDB)
	assert.Equal(t, "benson:ingress:admitted", cfg.Ingress.RedisKey, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"log": {"level": "debug"}, "audit": {"backend": "memory"}}`)
	t.Setenv("BENSON_LOG_LEVEL", "warn")
	t.Setenv("BENSON_AUDIT_BACKEND", "postgres")
	t.Setenv("BENSON_AUDIT_POSTGRES_DSN", "postgres://benson@db/benson?sslmode=disable")
	t.Setenv("BENSON_TELEMETRY_ENABLED", "true")
	t.Setenv("BENSON_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Audit.Backend)
	assert.Equal(t, "postgres://benson@db/benson?sslmode=disable", cfg.Audit.PostgresDSN)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad log level", map[string]string{"BENSON_LOG_LEVEL": "loud"}, "Level"},
		{"unknown backend", map[string]string{"BENSON_AUDIT_BACKEND": "mongo"}, "Backend"},
		{"sqlite needs path", map[string]string{"BENSON_AUDIT_BACKEND": "sqlite", "BENSON_AUDIT_SQLITE_PATH": ""}, "SQLitePath"},
		{"postgres needs dsn", map[string]string{"BENSON_AUDIT_BACKEND": "postgres"}, "PostgresDSN"},
		{"s3 needs bucket", map[string]string{"BENSON_EXPORT_SINK": "s3"}, "Bucket"},
		{"sample rate range", map[string]string{"BENSON_TELEMETRY_SAMPLE_RATE": "1.5"}, "SampleRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, `{"log": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "audit.sqlite_path", envTransform("BENSON_AUDIT_SQLITE_PATH"))
	assert.Equal(t, "log.level", envTransform("BENSON_LOG_LEVEL"))
	assert.Equal(t, "verbose", envTransform("BENSON_VERBOSE"))
}

func TestLogConfig(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())

	l := LogConfig{Level: "warn", Format: "json"}.Logger(os.Stderr)
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
}
