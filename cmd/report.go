package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/simharness/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [root]",
		Short: "Summarise stored job results per solver",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			root := a.settings.RootDirectory
			if len(args) > 0 {
				root = args[0]
			}
			return report.Generate(root, flagFormat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
