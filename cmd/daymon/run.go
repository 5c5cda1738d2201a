package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Run a task now, regardless of its trigger (paused tasks included; completed tasks are not rerun)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("daymon: %q is not a valid task id", args[0])
		}
		client, base, err := dialRunningDaemon()
		if err != nil {
			return err
		}
		resp, err := postJSON(client, base+"/tasks/"+args[0]+"/run")
		if err != nil {
			return fmt.Errorf("daymon: run request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("daymon: run request returned %s", resp.Status)
		}
		fmt.Println("run accepted")
		return nil
	},
}
