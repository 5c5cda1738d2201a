package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running sidecar to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, base, err := dialRunningDaemon()
		if err != nil {
			fmt.Println("not running")
			return nil
		}
		resp, err := postJSON(client, base+"/shutdown")
		if err != nil {
			return fmt.Errorf("daymon: shutdown request: %w", err)
		}
		_ = resp.Body.Close()
		fmt.Println("shutdown requested")
		return nil
	},
}
