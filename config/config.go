/*
config.go - Server configuration

PURPOSE:
  Collects every tunable of the coverage server in one struct. Values come
  from three layers, later ones winning:

    1. built-in defaults
    2. environment (a .env file in the working directory is loaded first)
    3. command-line flags

ENVIRONMENT:
  COVERAGE_PORT                 HTTP port (default 8080)
  COVERAGE_DB                   SQLite path (default coverage.db)
  COVERAGE_LOG_MODE             development | production (default development)
  COVERAGE_LIFECYCLE_FILE       YAML lifecycle feed imported at startup
  COVERAGE_SCHEDULE_INTERVAL    background reconcile interval, 0 disables
  COVERAGE_SYNC_PROGRAMS        comma separated program IDs synced by the scheduler
  COVERAGE_USE_EOS_FOR_MISSING  fill missing security/maintenance dates from EOS
  COVERAGE_MIGRATION_MONTH      1-12, cutoff month for replacement planning
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/warp/coverage-engine/lifecycle"
)

type Config struct {
	Port             string
	DBPath           string
	LogMode          string
	LifecycleFile    string
	ScheduleInterval time.Duration
	SyncPrograms     []string
	SyncDryRun       bool
	UseEOSForMissing bool
	MigrationMonth   int
}

func defaults() Config {
	return Config{
		Port:             "8080",
		DBPath:           "coverage.db",
		LogMode:          "development",
		ScheduleInterval: time.Hour,
		UseEOSForMissing: true,
		MigrationMonth:   int(lifecycle.DefaultMigrationMonth),
	}
}

// Load builds the configuration from defaults, the environment and args
// (usually os.Args[1:]). pflag.ErrHelp is returned unchanged when -h is given.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if err := cfg.fromEnv(); err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("coverage-server", pflag.ContinueOnError)
	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "logger mode: development or production")
	fs.StringVar(&cfg.LifecycleFile, "lifecycle-file", cfg.LifecycleFile, "YAML lifecycle feed to import at startup")
	fs.DurationVar(&cfg.ScheduleInterval, "schedule-interval", cfg.ScheduleInterval, "background reconcile interval (0 disables)")
	fs.StringSliceVar(&cfg.SyncPrograms, "sync-program", cfg.SyncPrograms, "program ID synced on every scheduler tick (repeatable)")
	fs.BoolVar(&cfg.SyncDryRun, "sync-dry-run", cfg.SyncDryRun, "scheduled program syncs only report")
	fs.BoolVar(&cfg.UseEOSForMissing, "use-eos-for-missing", cfg.UseEOSForMissing, "fill missing lifecycle dates from end of support")
	fs.IntVar(&cfg.MigrationMonth, "migration-month", cfg.MigrationMonth, "replacement planning cutoff month (1-12)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fromEnv() error {
	if v := os.Getenv("COVERAGE_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("COVERAGE_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("COVERAGE_LOG_MODE"); v != "" {
		c.LogMode = v
	}
	if v := os.Getenv("COVERAGE_LIFECYCLE_FILE"); v != "" {
		c.LifecycleFile = v
	}
	if v := os.Getenv("COVERAGE_SCHEDULE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COVERAGE_SCHEDULE_INTERVAL: %w", err)
		}
		c.ScheduleInterval = d
	}
	if v := os.Getenv("COVERAGE_SYNC_PROGRAMS"); v != "" {
		c.SyncPrograms = splitList(v)
	}
	if v := os.Getenv("COVERAGE_USE_EOS_FOR_MISSING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COVERAGE_USE_EOS_FOR_MISSING: %w", err)
		}
		c.UseEOSForMissing = b
	}
	if v := os.Getenv("COVERAGE_MIGRATION_MONTH"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COVERAGE_MIGRATION_MONTH: %w", err)
		}
		c.MigrationMonth = m
	}
	return nil
}

func (c *Config) validate() error {
	if c.MigrationMonth < 1 || c.MigrationMonth > 12 {
		return fmt.Errorf("migration month must be 1-12, got %d", c.MigrationMonth)
	}
	if c.ScheduleInterval < 0 {
		return fmt.Errorf("schedule interval must not be negative")
	}
	switch c.LogMode {
	case "development", "dev", "production", "prod":
	default:
		return fmt.Errorf("unknown log mode %q", c.LogMode)
	}
	return nil
}

// Lifecycle returns the evaluator/feed flags.
func (c *Config) Lifecycle() lifecycle.Config {
	lc := lifecycle.DefaultConfig()
	lc.UseEOSForMissingData = c.UseEOSForMissing
	lc.MigrationMonth = time.Month(c.MigrationMonth)
	return lc
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.Port }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
