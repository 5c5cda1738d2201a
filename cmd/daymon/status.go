package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type healthResponse struct {
	OK        bool    `json:"ok"`
	UptimeS   float64 `json:"uptime_s"`
	Version   string  `json:"version"`
	PID       int     `json:"pid"`
	Scheduler struct {
		Running  bool     `json:"running"`
		JobCount int      `json:"jobCount"`
		Jobs     []string `json:"jobs"`
	} `json:"scheduler"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the sidecar is running and its scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, base, err := dialRunningDaemon()
		if err != nil {
			fmt.Println("not running")
			return nil
		}
		var health healthResponse
		if err := getJSON(client, base+"/health", &health); err != nil {
			return err
		}
		fmt.Printf("daymon %s (pid %d), up %.0fs\n", health.Version, health.PID, health.UptimeS)
		fmt.Printf("scheduler: running=%v jobs=%d\n", health.Scheduler.Running, health.Scheduler.JobCount)
		for _, name := range health.Scheduler.Jobs {
			fmt.Printf("  - %s\n", name)
		}
		return nil
	},
}
