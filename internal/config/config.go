// Package config resolves the sidecar's environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the sidecar's runtime configuration, populated entirely from
// DAYMON_* environment variables via viper's env layer. There
// is no config file for the core paths — only DAYMON_DB_PATH is required;
// ResultsDir and DataDir default to "results" and "data" beside it.
type Config struct {
	DBPath     string
	ResultsDir string
	DataDir    string
	// SidecarPort is the caller-requested port; 0 means OS-assigned.
	SidecarPort int
	// NotifyOSDisabled opts out of the OS notification sink entirely; SSE
	// broadcast is unaffected.
	NotifyOSDisabled bool
	// DefaultNudgeMode is the fallback for tasks with nudge_mode unset.
	DefaultNudgeMode string
	// QuietHoursFrom/QuietHoursUntil are "HH:MM" local wall-clock bounds
	// during which completion nudges (not failures) are suppressed. Both
	// empty disables quiet hours.
	QuietHoursFrom  string
	QuietHoursUntil string
}

// newViper builds a viper instance bound to the DAYMON_ env namespace, one
// key per Config field.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("daymon")
	v.AutomaticEnv()
	for _, key := range []string{
		"db_path", "results_dir", "data_dir", "sidecar_port",
		"notify_os_disabled", "nudge_mode_default",
		"quiet_hours_from", "quiet_hours_until",
	} {
		_ = v.BindEnv(key)
	}
	v.SetDefault("nudge_mode_default", "always")
	return v
}

// Load reads configuration from the environment. It returns a configuration
// error if DAYMON_DB_PATH is unset; the daemon refuses to start without it.
func Load() (*Config, error) {
	v := newViper()

	dbPath := v.GetString("db_path")
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("config: DAYMON_DB_PATH is required")
	}
	dbPath, err := expandHome(dbPath)
	if err != nil {
		return nil, fmt.Errorf("config: DAYMON_DB_PATH: %w", err)
	}

	resultsDir := v.GetString("results_dir")
	if resultsDir == "" {
		resultsDir = filepath.Join(filepath.Dir(dbPath), "results")
	}
	resultsDir, err = expandHome(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("config: DAYMON_RESULTS_DIR: %w", err)
	}

	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = filepath.Join(filepath.Dir(dbPath), "data")
	}
	dataDir, err = expandHome(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: DAYMON_DATA_DIR: %w", err)
	}

	port := 0
	if raw := v.GetString("sidecar_port"); raw != "" {
		port = v.GetInt("sidecar_port")
		if port == 0 && raw != "0" {
			return nil, fmt.Errorf("config: DAYMON_SIDECAR_PORT: invalid integer %q", raw)
		}
		if port < 0 {
			return nil, fmt.Errorf("config: DAYMON_SIDECAR_PORT must be >= 0")
		}
	}

	return &Config{
		DBPath:           dbPath,
		ResultsDir:       resultsDir,
		DataDir:          dataDir,
		SidecarPort:      port,
		NotifyOSDisabled: v.GetString("notify_os_disabled") == "1",
		DefaultNudgeMode: v.GetString("nudge_mode_default"),
		QuietHoursFrom:   v.GetString("quiet_hours_from"),
		QuietHoursUntil:  v.GetString("quiet_hours_until"),
	}, nil
}

// expandHome expands a leading "~/" to the current user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return expanded, nil
}

// EnsureDirs creates ResultsDir and DataDir if they do not already exist.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("config: creating results dir: %w", err)
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("config: creating data dir: %w", err)
	}
	return nil
}
