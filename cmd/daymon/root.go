package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daymon-dev/daymon/internal/config"
)

// Version is stamped at build time via -ldflags; propagated into
// internal/httpapi's /health response.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "daymon",
	Short: "Daymon - a personal AI task daemon",
	Long: `Daymon runs a background sidecar that executes AI tasks on cron,
one-shot, manual, and file-watch triggers, persists every run, and exposes
a loopback control surface (HTTP + SSE) for local tooling to drive it.

Configuration is entirely environment-driven (DAYMON_DB_PATH and friends);
see 'daymon serve --help'.`,
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig is shared by every subcommand that talks to a (running or
// about-to-run) daemon instance.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(watchCmd)
}
