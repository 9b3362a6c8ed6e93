package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/opsgrid/internal/screens"
)

func newScreensCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screens",
		Short: "Inspect screen definitions",
	}
	cmd.AddCommand(newScreensCheckCmd(root))
	return cmd
}

func newScreensCheckCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a screens file and summarize its screens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig(root.envFile)
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				path = cfg.Grid.ScreensFile
			}
			return runScreensCheck(cmd, path)
		},
	}
}

func runScreensCheck(cmd *cobra.Command, path string) error {
	catalog, err := screens.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSOURCE\tCOLUMNS\tSYNC\tEDITABLE")
	for _, s := range catalog.All() {
		sync := "-"
		if s.SyncQuery {
			sync = "query"
			if s.SyncPagination {
				sync = "query+page"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n",
			s.ID, s.Title, s.Source.Kind, len(s.Columns), sync, len(s.Editable))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d screens OK\n", path, catalog.Len())
	return nil
}
