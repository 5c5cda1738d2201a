package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daymon-dev/daymon/internal/store"
	"github.com/daymon-dev/daymon/internal/watchpolicy"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage filesystem watches",
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		watches, err := st.ListWatches(nil)
		if err != nil {
			return err
		}
		for _, w := range watches {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\ttriggers=%d\n", w.ID, w.Status, w.Path, w.TriggerCount)
		}
		return nil
	},
}

var watchAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Watch a path, running a prompt when it changes",
	Long: `Watch a file or directory for changes. The path must be absolute (a
leading ~ is expanded), inside your home directory or /tmp, and free of
sensitive components (.ssh, .aws, .env and the like); symlinks are
resolved before the check.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		if prompt == "" {
			return fmt.Errorf("daymon: --prompt is required")
		}
		path, err := watchpolicy.Validate(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		description, _ := cmd.Flags().GetString("description")
		w, err := st.CreateWatch(store.Watch{Path: path, Description: description, ActionPrompt: prompt})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created watch %d on %s\n", w.ID, w.Path)
		return nil
	},
}

var watchPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a watch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWatchStatus(cmd, args[0], store.WatchPaused)
	},
}

var watchResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Set a paused watch back to active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWatchStatus(cmd, args[0], store.WatchActive)
	},
}

func setWatchStatus(cmd *cobra.Command, arg string, status store.WatchStatus) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if _, err := st.UpdateWatch(id, store.WatchUpdate{Status: &status}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watch %d is now %s\n", id, status)
	return nil
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a watch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if _, err := st.GetWatch(id); err != nil {
			return fmt.Errorf("daymon: watch %d not found", id)
		}
		if err := st.DeleteWatch(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted watch %d\n", id)
		return nil
	},
}

func init() {
	watchAddCmd.Flags().String("prompt", "", "action prompt to run on change (required)")
	watchAddCmd.Flags().String("description", "", "watch description")

	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchPauseCmd)
	watchCmd.AddCommand(watchResumeCmd)
	watchCmd.AddCommand(watchRemoveCmd)
}
