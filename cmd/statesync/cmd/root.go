package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HazyCorp/statesync/cmd/statesync/cmd/get"
	"github.com/HazyCorp/statesync/cmd/statesync/cmd/put"
	"github.com/HazyCorp/statesync/cmd/statesync/cmd/run"
	"github.com/HazyCorp/statesync/internal/cmd/globflags"
	"github.com/HazyCorp/statesync/internal/util"
)

var rootCmd = &cobra.Command{
	Use:              "statesync",
	Short:            "shared state endpoint with optimistic concurrency",
	Version:          "0.1.0",
	TraverseChildren: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cmd.ValidateFlagGroups(); err != nil {
			return err
		}
		if err := cmd.ValidateRequiredFlags(); err != nil {
			return err
		}

		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return nil
	},
}

func Execute() {
	ctx, cancel := util.ShutdownContext()
	defer cancel()

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.SilenceErrors = false
		cmd.SilenceUsage = false

		return err
	})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error occurred: %s\n", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&globflags.Addr,
		"addr",
		"http://localhost:13337",
		"base url of the state server, used by client commands",
	)
	rootCmd.PersistentFlags().DurationVar(
		&globflags.Timeout,
		"timeout",
		10*time.Second,
		"timeout of a single request made by client commands",
	)

	rootCmd.AddCommand(run.RunCmd)
	rootCmd.AddCommand(get.GetCmd)
	rootCmd.AddCommand(put.PutCmd)
}
