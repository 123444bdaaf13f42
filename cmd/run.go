package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/model"
	"github.com/signalnine/simharness/internal/runner"
	"github.com/signalnine/simharness/internal/workspace"
)

var (
	flagSolver    string
	flagParams    []string
	flagSweeps    []string
	flagCheck     bool
	flagRetention string
	flagParallel  int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a solver in a fresh job directory",
		RunE:  runSolver,
	}
	cmd.Flags().StringVar(&flagSolver, "solver", "", "solver name from the catalogue")
	cmd.Flags().StringArrayVar(&flagParams, "param", nil, "input parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&flagSweeps, "sweep", nil, "sweep a parameter as key=v1,v2,... (repeatable, cartesian product)")
	cmd.Flags().BoolVar(&flagCheck, "check", false, "fail when a solver command fails instead of reporting its error code")
	cmd.Flags().StringVar(&flagRetention, "retention", "", "override SIMHARNESS_RETENTION (keep, delete, archive, archive-s3)")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent jobs in a sweep")
	cmd.MarkFlagRequired("solver")
	return cmd
}

func runSolver(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := model.ValidateHooks(cfg); err != nil {
		return err
	}
	solver, err := cfg.Solver(flagSolver)
	if err != nil {
		return err
	}

	settings := a.settings
	if cmd.Flags().Changed("check") {
		settings.CheckSubprocess = flagCheck
	}
	if flagRetention != "" {
		settings.Retention = flagRetention
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	base, err := parseParams(flagParams)
	if err != nil {
		return err
	}
	points, err := expandSweep(base, flagSweeps)
	if err != nil {
		return err
	}
	if len(points) > 1 && settings.WorkingDirectory != "" {
		return fmt.Errorf("a sweep needs one directory per job; unset %sWORKING_DIRECTORY", config.EnvPrefix)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention, err := workspace.NewRetention(ctx, settings, a.log)
	if err != nil {
		return err
	}
	r := runner.New(a.log, a.metrics)
	r.PollInterval = settings.PollInterval
	opts := model.Options{
		Settings:  settings,
		Runner:    r,
		Retention: retention,
		Log:       a.log,
		BaseDir:   filepath.Dir(cfgFile),
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	tasks := make([]runner.Task, len(points))
	for i, point := range points {
		tasks[i] = func(ctx context.Context) error {
			exec, err := model.Run(ctx, solver, opts, point)
			mu.Lock()
			defer mu.Unlock()
			if exec != nil {
				printExecution(out, exec.Dir, exec.Archive, point, exec.Outputs)
			}
			return err
		}
	}

	errs := runner.RunPool(ctx, flagParallel, tasks)
	for i, err := range errs {
		if err != nil {
			a.log.Error("job failed", zap.Int("point", i), zap.Error(err))
		}
	}
	if n := runner.Failed(errs); n > 0 {
		return fmt.Errorf("%d of %d jobs failed", n, len(tasks))
	}
	return nil
}

func printExecution(w io.Writer, dir, archive string, params, outputs model.Data) {
	fmt.Fprintf(w, "Job directory: %s\n", dir)
	if archive != "" {
		fmt.Fprintf(w, "  archived to: %s\n", archive)
	}
	if len(params) > 0 {
		fmt.Fprintf(w, "  params: %s\n", formatData(params))
	}
	fmt.Fprintf(w, "  error_code: %d\n", outputs.ErrorCode())
	rest := model.Data{}
	for k, v := range outputs {
		if k != model.ErrorCodeKey {
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		fmt.Fprintf(w, "  outputs: %s\n", formatData(rest))
	}
}

func formatData(d model.Data) string {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprint(map[string]any(d))
	}
	return string(data)
}

// parseParams turns key=value pairs into template parameters. Numeric values
// become float64 so hooks can compute with them.
func parseParams(pairs []string) (model.Data, error) {
	params := model.Data{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", p)
		}
		params[k] = parseValue(v)
	}
	return params, nil
}

func parseValue(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// expandSweep returns one parameter set per point of the cartesian product of
// the sweeps, each layered over base. Points are ordered with the last sweep
// varying fastest.
func expandSweep(base model.Data, sweeps []string) ([]model.Data, error) {
	points := []model.Data{base}
	seen := map[string]bool{}
	for _, s := range sweeps {
		k, list, ok := strings.Cut(s, "=")
		if !ok || k == "" || list == "" {
			return nil, fmt.Errorf("invalid sweep %q (want key=v1,v2,...)", s)
		}
		if seen[k] {
			return nil, fmt.Errorf("parameter %q swept twice", k)
		}
		seen[k] = true
		values := strings.Split(list, ",")
		next := make([]model.Data, 0, len(points)*len(values))
		for _, p := range points {
			for _, v := range values {
				point := make(model.Data, len(p)+1)
				for pk, pv := range p {
					point[pk] = pv
				}
				point[k] = parseValue(strings.TrimSpace(v))
				next = append(next, point)
			}
		}
		points = next
	}
	return points, nil
}
