package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/workspace"
)

var flagCleanRetention string

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Apply the retention policy to finished job directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			settings := a.settings
			if flagCleanRetention != "" {
				settings.Retention = flagCleanRetention
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			ret, err := workspace.NewRetention(cmd.Context(), settings, a.log)
			if err != nil {
				return err
			}
			n, err := cleanJobs(cmd.Context(), filepath.Join(settings.RootDirectory, workspace.JobsDir), ret, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %q to %d job directories\n", settings.Retention, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagCleanRetention, "retention", "", "override SIMHARNESS_RETENTION (keep, delete, archive, archive-s3)")
	return cmd
}

// cleanJobs applies ret to every job directory under jobsDir that holds a
// summary. Directories without one are still running or were never started
// and are left alone.
func cleanJobs(ctx context.Context, jobsDir string, ret *workspace.Retention, log *zap.Logger) (int, error) {
	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading jobs dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(jobsDir, e.Name())
		res, err := result.ReadSummary(filepath.Join(dir, result.SummaryFile))
		if err != nil {
			log.Debug("skipping job without summary", zap.String("dir", dir))
			continue
		}
		if _, err := ret.Apply(ctx, dir, !res.Succeeded()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
