/*
Package config loads server settings from flags, the environment and .env.

PRECEDENCE (highest first):
  1. Command-line flag
  2. Environment variable
  3. .env file in the working directory (never overrides the real environment)
  4. Built-in default

SETTINGS:
  -port                PORT                 HTTP port (8080)
  -driver              DB_DRIVER            sqlite | postgres | memory (sqlite)
  -db                  DB_PATH              SQLite path, ":memory:" allowed (leave.db)
  -database-url        DATABASE_URL         PostgreSQL URL, required for postgres
  -jwt-secret          JWT_SECRET           HS256 secret; empty accepts X-User-* headers
  -cors-origins        CORS_ORIGINS         Comma-separated allowed origins (*)
  -log-level           LOG_LEVEL            debug | info | warn | error (info)
  -log-format          LOG_FORMAT           text | json (text)
  -scenario            SCENARIO             Demo scenario loaded at startup
  -seed-file           SEED_FILE            Catalog JSON loaded at startup
  -year-end-scheduler  YEAR_END_SCHEDULER   Close ended leave years periodically (false)
  -year-end-interval   YEAR_END_INTERVAL    Scheduler interval (1h)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port             int
	Driver           string
	DBPath           string
	DatabaseURL      string
	JWTSecret        string
	CORSOrigins      []string
	LogLevel         string
	LogFormat        string
	Scenario         string
	SeedFile         string
	YearEndScheduler bool
	YearEndInterval  time.Duration
}

// Load reads .env, then parses args (without the program name) over
// environment defaults.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	var (
		cfg  Config
		cors string
	)
	fs := flag.NewFlagSet("leave-engine", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.Port, "port", getEnvInt("PORT", 8080), "HTTP server port")
	fs.StringVar(&cfg.Driver, "driver", getEnv("DB_DRIVER", DriverSQLite), "Storage driver: sqlite, postgres or memory")
	fs.StringVar(&cfg.DBPath, "db", getEnv("DB_PATH", "leave.db"), "SQLite database path")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection URL")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnv("JWT_SECRET", ""), "HS256 secret for bearer tokens")
	fs.StringVar(&cors, "cors-origins", getEnv("CORS_ORIGINS", "*"), "Comma-separated allowed CORS origins")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.Scenario, "scenario", getEnv("SCENARIO", ""), "Demo scenario to load at startup")
	fs.StringVar(&cfg.SeedFile, "seed-file", getEnv("SEED_FILE", ""), "Catalog JSON to load at startup")
	fs.BoolVar(&cfg.YearEndScheduler, "year-end-scheduler", getEnvBool("YEAR_END_SCHEDULER", false), "Close ended leave years periodically")
	fs.DurationVar(&cfg.YearEndInterval, "year-end-interval", getEnvDuration("YEAR_END_INTERVAL", time.Hour), "Year-end scheduler interval")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("invalid arguments: %w", err)
	}
	cfg.CORSOrigins = splitList(cors)
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (sqlite, postgres, memory)", c.Driver)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.YearEndScheduler && c.YearEndInterval <= 0 {
		return errors.New("YEAR_END_INTERVAL must be positive when YEAR_END_SCHEDULER is on")
	}
	if c.Scenario != "" && c.SeedFile != "" {
		return errors.New("SCENARIO and SEED_FILE are mutually exclusive")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// NewLogger builds the process logger described by LogLevel and LogFormat.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
