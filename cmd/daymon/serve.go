package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daymon-dev/daymon/internal/daemon"
	"github.com/daymon-dev/daymon/internal/httpapi"
	"github.com/daymon-dev/daymon/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sidecar in the foreground",
	Long: `Run the sidecar in the foreground: opens the store, starts the
Scheduler and File Watcher, and serves the Control Surface until
interrupted (Ctrl-C) or told to shut down via POST /shutdown.

Configuration comes from the environment: DAYMON_DB_PATH (required),
DAYMON_RESULTS_DIR, DAYMON_DATA_DIR and DAYMON_SIDECAR_PORT.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	httpapi.Version = Version
	logger := logging.New(cfg.DataDir)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("daymon: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	return d.Run(ctx)
}
