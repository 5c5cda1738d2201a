package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DAYMON_DB_PATH", "DAYMON_RESULTS_DIR", "DAYMON_DATA_DIR", "DAYMON_SIDECAR_PORT",
		"DAYMON_NOTIFY_OS_DISABLED", "DAYMON_NUDGE_MODE_DEFAULT",
		"DAYMON_QUIET_HOURS_FROM", "DAYMON_QUIET_HOURS_UNTIL",
	} {
		old, had := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_MissingDBPathIsFatal(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "daymon.db")
	require.NoError(t, os.Setenv("DAYMON_DB_PATH", dbPath))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, "results"), cfg.ResultsDir)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, 0, cfg.SidecarPort)
	assert.False(t, cfg.NotifyOSDisabled)
	assert.Equal(t, "always", cfg.DefaultNudgeMode)
	assert.Empty(t, cfg.QuietHoursFrom)
	assert.Empty(t, cfg.QuietHoursUntil)
}

func TestLoad_NotifierSettings(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "daymon.db")
	require.NoError(t, os.Setenv("DAYMON_DB_PATH", dbPath))
	require.NoError(t, os.Setenv("DAYMON_NOTIFY_OS_DISABLED", "1"))
	require.NoError(t, os.Setenv("DAYMON_NUDGE_MODE_DEFAULT", "failure_only"))
	require.NoError(t, os.Setenv("DAYMON_QUIET_HOURS_FROM", "22:00"))
	require.NoError(t, os.Setenv("DAYMON_QUIET_HOURS_UNTIL", "07:00"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.NotifyOSDisabled)
	assert.Equal(t, "failure_only", cfg.DefaultNudgeMode)
	assert.Equal(t, "22:00", cfg.QuietHoursFrom)
	assert.Equal(t, "07:00", cfg.QuietHoursUntil)
}

func TestLoad_ExplicitPort(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "daymon.db")
	require.NoError(t, os.Setenv("DAYMON_DB_PATH", dbPath))
	require.NoError(t, os.Setenv("DAYMON_SIDECAR_PORT", "4455"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4455, cfg.SidecarPort)
}

func TestLoad_HomeExpansion(t *testing.T) {
	clearEnv(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.NoError(t, os.Setenv("DAYMON_DB_PATH", "~/daymon-test/daymon.db"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "daymon-test", "daymon.db"), cfg.DBPath)
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ResultsDir: filepath.Join(dir, "results"),
		DataDir:    filepath.Join(dir, "data"),
	}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.ResultsDir)
	assert.DirExists(t, cfg.DataDir)
}
