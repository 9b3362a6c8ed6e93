package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "opsgrid",
		Short:         "opsgrid serves configurable data-grid screens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Load environment variables from this file when it exists")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newScreensCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
