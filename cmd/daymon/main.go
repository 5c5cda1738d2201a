// Command daymon runs the Daymon sidecar: a personal background daemon
// that executes AI tasks on cron, one-shot, manual, and file-watch
// triggers and exposes a loopback control surface for local tooling.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
