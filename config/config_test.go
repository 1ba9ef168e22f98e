package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"COVERAGE_PORT", "COVERAGE_DB", "COVERAGE_LOG_MODE", "COVERAGE_LIFECYCLE_FILE",
		"COVERAGE_SCHEDULE_INTERVAL", "COVERAGE_SYNC_PROGRAMS",
		"COVERAGE_USE_EOS_FOR_MISSING", "COVERAGE_MIGRATION_MONTH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "coverage.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.ScheduleInterval)
	assert.True(t, cfg.UseEOSForMissing)
	assert.Equal(t, time.June, cfg.Lifecycle().MigrationMonth)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvironmentThenFlags(t *testing.T) {
	clearEnv(t)
	// GIVEN: environment values
	t.Setenv("COVERAGE_PORT", "9000")
	t.Setenv("COVERAGE_DB", "/tmp/env.db")
	t.Setenv("COVERAGE_SYNC_PROGRAMS", "p1, p2,,")
	t.Setenv("COVERAGE_USE_EOS_FOR_MISSING", "false")
	t.Setenv("COVERAGE_MIGRATION_MONTH", "3")

	// WHEN: a flag overrides one of them
	cfg, err := Load([]string{"--db", "/tmp/flag.db", "--schedule-interval", "5m"})
	require.NoError(t, err)

	// THEN: flags win, the rest comes from the environment
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/tmp/flag.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.ScheduleInterval)
	assert.Equal(t, []string{"p1", "p2"}, cfg.SyncPrograms)

	lc := cfg.Lifecycle()
	assert.False(t, lc.UseEOSForMissingData)
	assert.Equal(t, time.March, lc.MigrationMonth)
	assert.True(t, lc.OnlyActiveTypes)
}

func TestLoad_Rejects(t *testing.T) {
	clearEnv(t)

	_, err := Load([]string{"--migration-month", "13"})
	assert.Error(t, err)

	_, err = Load([]string{"--log-mode", "verbose"})
	assert.Error(t, err)

	_, err = Load([]string{"extra"})
	assert.Error(t, err)

	t.Setenv("COVERAGE_SCHEDULE_INTERVAL", "soon")
	_, err = Load(nil)
	assert.Error(t, err)
}

func TestLoad_Help(t *testing.T) {
	clearEnv(t)

	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
