package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger one immediate scheduler and watcher sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, base, err := dialRunningDaemon()
		if err != nil {
			return err
		}
		resp, err := postJSON(client, base+"/sync")
		if err != nil {
			return fmt.Errorf("daymon: sync request: %w", err)
		}
		_ = resp.Body.Close()
		fmt.Println("sync triggered")
		return nil
	},
}
