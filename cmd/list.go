package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/simharness/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured solvers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Solvers:")
			for _, s := range cfg.Solvers {
				where := s.Executor
				if s.Executor == config.ExecutorContainer {
					where += ", image: " + s.Image
				}
				fmt.Fprintf(out, "  - %s (%s)\n", s.Name, where)
				fmt.Fprintf(out, "      stages: %s\n", strings.Join(stages(&s), " -> "))
				if s.CompletionFile != "" {
					fmt.Fprintf(out, "      completion: %s\n", s.CompletionFile)
				}
			}
			return nil
		},
	}
}

func stages(s *config.Solver) []string {
	var out []string
	if s.CommandPre != "" {
		out = append(out, "pre")
	}
	out = append(out, "run")
	if s.CommandPost != "" {
		out = append(out, "post")
	}
	return out
}
