package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daymon-dev/daymon/internal/workerseed"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Manage Workers",
}

var workerImportCmd = &cobra.Command{
	Use:   "import <file>.toml",
	Short: "Create or update Workers from a TOML seed file",
	Long: `Reads a [[worker]] TOML file and upserts each entry by name directly
against the Store's database file. This works whether or not the sidecar is
currently running, since the embedded store supports concurrent WAL
access. It does not go through the Control Surface, which has no Worker
route.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := workerseed.Load(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		created, updated, err := workerseed.Apply(st, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workers: %d created, %d updated\n", created, updated)
		return nil
	},
}

func init() {
	workerCmd.AddCommand(workerImportCmd)
}
