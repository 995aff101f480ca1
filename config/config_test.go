package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with the given variables unset.
// Cleanup restores the previous environment.
func isolate(t *testing.T, keys ...string) {
	t.Chdir(t.TempDir())
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

var allKeys = []string{
	"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "JWT_SECRET", "CORS_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT", "SCENARIO", "SEED_FILE", "YEAR_END_SCHEDULER", "YEAR_END_INTERVAL",
}

func TestLoadDefaults(t *testing.T) {
	isolate(t, allKeys...)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "leave.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.YearEndScheduler)
	assert.Equal(t, time.Hour, cfg.YearEndInterval)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	isolate(t, allKeys...)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/leave")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("YEAR_END_SCHEDULER", "true")

	cfg, err := Load([]string{"-port=9100", "-year-end-interval=5m"})
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.YearEndScheduler)
	assert.Equal(t, 5*time.Minute, cfg.YearEndInterval)
	assert.Equal(t, ":9100", cfg.Addr())
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	isolate(t, allKeys...)
	t.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("DB_PATH=from-dotenv.db\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv.db", cfg.DBPath)
	// The real environment wins over .env.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	isolate(t, allKeys...)
	_, err := Load([]string{"-nope"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, Driver: DriverSQLite, DBPath: "leave.db", LogLevel: "info", LogFormat: "text", YearEndInterval: time.Hour}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"memory driver", func(c *Config) { c.Driver = DriverMemory; c.DBPath = "" }, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"unknown driver", func(c *Config) { c.Driver = "mysql" }, false},
		{"sqlite without path", func(c *Config) { c.DBPath = " " }, false},
		{"postgres without url", func(c *Config) { c.Driver = DriverPostgres }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, false},
		{"scheduler without interval", func(c *Config) { c.YearEndScheduler = true; c.YearEndInterval = 0 }, false},
		{"scenario and seed file", func(c *Config) { c.Scenario = "basic"; c.SeedFile = "seed.json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "year", 2026)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"year":2026`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
