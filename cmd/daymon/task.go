package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/daymon-dev/daymon/internal/store"
)

// openStore opens the configured database directly; used by subcommands
// that manage rows without needing a running sidecar (WAL mode permits
// concurrent access alongside one).
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath, log.New(cmd.ErrOrStderr(), "", 0))
	if err != nil {
		return nil, fmt.Errorf("daymon: open store: %w", err)
	}
	return st, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("daymon: %q is not a valid id", arg)
	}
	return id, nil
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		var filter *store.TaskStatus
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := store.TaskStatus(s)
			filter = &status
		}
		tasks, err := st.ListTasks(filter)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			trigger := string(t.TriggerType)
			switch {
			case t.CronExpression != nil:
				trigger = fmt.Sprintf("cron %q", *t.CronExpression)
			case t.ScheduledAt != nil:
				trigger = "once at " + t.ScheduledAt.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\truns=%d errors=%d\n",
				t.ID, t.Name, t.Status, trigger, t.RunCount, t.ErrorCount)
		}
		return nil
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		prompt, _ := flags.GetString("prompt")
		if name == "" || prompt == "" {
			return fmt.Errorf("daymon: --name and --prompt are required")
		}

		t := store.Task{
			Name:        name,
			Prompt:      prompt,
			TriggerType: store.TriggerManual,
		}
		t.Description, _ = flags.GetString("description")
		t.SessionContinuity, _ = flags.GetBool("session")
		t.NudgeMode, _ = flags.GetString("nudge")

		if cronExpr, _ := flags.GetString("cron"); cronExpr != "" {
			t.TriggerType = store.TriggerCron
			t.CronExpression = &cronExpr
		}
		if at, _ := flags.GetString("at"); at != "" {
			if t.TriggerType == store.TriggerCron {
				return fmt.Errorf("daymon: --cron and --at are mutually exclusive")
			}
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("daymon: --at must be RFC3339: %w", err)
			}
			t.TriggerType = store.TriggerOnce
			t.ScheduledAt = &when
		}
		if maxRuns, _ := flags.GetInt("max-runs"); maxRuns > 0 {
			t.MaxRuns = &maxRuns
		}
		if workerID, _ := flags.GetInt64("worker"); workerID > 0 {
			t.WorkerID = &workerID
		}
		if timeoutMinutes, _ := flags.GetInt("timeout-minutes"); timeoutMinutes > 0 {
			t.TimeoutMinutes = &timeoutMinutes
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		created, err := st.CreateTask(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created task %d (%s)\n", created.ID, created.Name)
		return nil
	},
}

var taskPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a task, suppressing all triggering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskPaused(cmd, args[0], true)
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Set a paused task back to active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskPaused(cmd, args[0], false)
	},
}

func setTaskPaused(cmd *cobra.Command, arg string, paused bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if paused {
		err = st.PauseTask(id)
	} else {
		err = st.ResumeTask(id)
	}
	if err != nil {
		return err
	}
	state := "active"
	if paused {
		state = "paused"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "task %d is now %s\n", id, state)
	return nil
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its runs",
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

		if _, err := st.GetTask(id); err != nil {
			return fmt.Errorf("daymon: task %d not found", id)
		}
		if err := st.DeleteTask(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted task %d\n", id)
		return nil
	},
}

func init() {
	taskListCmd.Flags().String("status", "", "filter by status (active|paused|completed|error)")

	taskCreateCmd.Flags().String("name", "", "task name (required)")
	taskCreateCmd.Flags().String("prompt", "", "prompt text (required)")
	taskCreateCmd.Flags().String("description", "", "task description")
	taskCreateCmd.Flags().String("cron", "", "cron expression; makes this a cron task")
	taskCreateCmd.Flags().String("at", "", "RFC3339 time; makes this a one-shot task")
	taskCreateCmd.Flags().Int("max-runs", 0, "complete the task after this many successful runs")
	taskCreateCmd.Flags().Int64("worker", 0, "worker id to execute with")
	taskCreateCmd.Flags().Bool("session", false, "enable session continuity across runs")
	taskCreateCmd.Flags().Int("timeout-minutes", 0, "per-task execution timeout override")
	taskCreateCmd.Flags().String("nudge", "", "notification mode (always|failure_only|never)")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskPauseCmd)
	taskCmd.AddCommand(taskResumeCmd)
	taskCmd.AddCommand(taskDeleteCmd)
}
