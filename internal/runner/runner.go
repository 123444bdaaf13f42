// Package runner launches external solver commands in job directories,
// classifies how they ended, and turns failures into error codes or errors.
package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/executor"
	"github.com/signalnine/simharness/internal/job"
	"github.com/signalnine/simharness/internal/logging"
	"github.com/signalnine/simharness/internal/metrics"
	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/workspace"
)

// tailLines is how much captured output goes into warnings.
const tailLines = 20

// Runner executes jobs with a local or container executor and records their
// outcome.
type Runner struct {
	Local     executor.Executor
	Container executor.Executor
	Log       *zap.Logger
	Metrics   *metrics.Recorder

	// PollInterval is the wait between completion checks when a job has a
	// completion timeout.
	PollInterval time.Duration
}

// New returns a runner with the host and Docker executors. log and rec may be nil.
func New(log *zap.Logger, rec *metrics.Recorder) *Runner {
	return &Runner{
		Local:        executor.NewLocal(),
		Container:    executor.NewContainer(),
		Log:          logging.OrNop(log).Named("runner"),
		Metrics:      rec,
		PollInterval: 100 * time.Millisecond,
	}
}

// Execute runs commandLine through the shell in dir, which must already exist,
// appends its output to the log files there and then evaluates done (nil
// always holds). It returns 0 on success, -1 when the command could not be
// launched, the exit status on nonzero exit and 1 when the command exited
// cleanly but done did not hold. With check set, any nonzero code also yields
// a *JobError.
func (r *Runner) Execute(ctx context.Context, dir, commandLine string, done completion.Predicate, check bool) (int, error) {
	res := r.run(ctx, r.local(), "", executor.Spec{Dir: dir, CommandLine: commandLine}, done, 0)
	return res.ErrorCode, r.escalate(res, check)
}

// ExecuteJob renders and stages j, runs it with the executor it names and
// persists its summary in j.Dir. Template and staging problems are
// returned as errors regardless of j.CheckSubprocess.
func (r *Runner) ExecuteJob(ctx context.Context, j *job.Job) (*result.JobResult, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	commandLine, err := workspace.Render(j.Command, j.Params)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if err := workspace.Stage(j.Dir, j.Attach); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}

	ex := r.local()
	if j.Executor == config.ExecutorContainer {
		ex = r.Container
		if ex == nil {
			ex = executor.NewContainer()
		}
	}
	spec := executor.Spec{
		Dir:         j.Dir,
		CommandLine: commandLine,
		Env:         j.Env,
		Image:       j.Image,
		Timeout:     j.Timeout,
		CPUs:        j.CPUs,
		MemoryMB:    j.MemoryMB,
	}
	res := r.run(ctx, ex, j.Solver, spec, j.Completion, j.CompletionTimeout)
	res.Name = j.Name

	if err := result.WriteSummary(j.Dir, res); err != nil {
		r.logger().Warn("writing job summary", zap.String("dir", j.Dir), zap.Error(err))
	}
	return res, r.escalate(res, j.CheckSubprocess)
}

func (r *Runner) run(ctx context.Context, ex executor.Executor, solver string, spec executor.Spec, done completion.Predicate, completionTimeout time.Duration) *result.JobResult {
	res := &result.JobResult{
		Solver:      solver,
		Dir:         spec.Dir,
		CommandLine: spec.CommandLine,
		State:       result.StatePending,
	}
	log := r.logger().With(zap.String("command", spec.CommandLine), zap.String("dir", spec.Dir))

	res.State = result.StateRunning
	res.StartedAt = time.Now().UTC()
	log.Debug("launching")
	out := ex.Run(ctx, spec)

	res.ExitCode = out.ExitCode
	res.TimedOut = out.TimedOut
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	if out.StartErr == nil {
		if err := result.WriteLogs(spec.Dir, res); err != nil {
			log.Warn("writing job logs", zap.Error(err))
		}
	}

	switch {
	case out.StartErr != nil:
		res.Kind = result.KindLaunch
		res.ErrorCode = -1
		res.Detail = out.StartErr.Error()
	case out.ExitCode != 0:
		res.Kind = result.KindExit
		res.ErrorCode = out.ExitCode
		if out.TimedOut {
			res.Detail = fmt.Sprintf("timed out after %s", spec.Timeout)
		}
	default:
		if err := r.waitCompletion(ctx, done, spec.Dir, completionTimeout); err != nil {
			res.Kind = result.KindIncomplete
			res.ErrorCode = 1
			res.Detail = err.Error()
		}
	}

	res.DurationS = time.Since(res.StartedAt).Seconds()
	if res.ErrorCode == 0 {
		res.State = result.StateSucceeded
	} else {
		res.State = result.StateFailed
	}
	r.Metrics.ObserveJob(metricLabel(solver), outcome(res), res.DurationS)
	log.Debug("finished", zap.Int("code", res.ErrorCode), zap.Float64("duration_s", res.DurationS))
	return res
}

// waitCompletion returns nil when done holds. Errors raised by the predicate
// count as not holding.
func (r *Runner) waitCompletion(ctx context.Context, done completion.Predicate, dir string, timeout time.Duration) error {
	if done == nil {
		return nil
	}
	if timeout > 0 {
		log := r.logger().With(zap.String("dir", dir))
		last := ""
		poll := func(dir string) (bool, error) {
			if name := newestOutput(dir); name != "" && name != last {
				log.Debug("waiting for completion", zap.String("latest_output", name))
				last = name
			}
			return done(dir)
		}
		return completion.WaitFor(ctx, poll, dir, timeout, r.PollInterval)
	}
	ok, err := completion.Check(done, dir)
	if err != nil {
		return fmt.Errorf("completion check: %w", err)
	}
	if !ok {
		return fmt.Errorf("completion check not satisfied in %s", dir)
	}
	return nil
}

// newestOutput names the most recently written file in dir, ignoring the
// harness's own logs and summary.
func newestOutput(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var name string
	var newest time.Time
	for _, e := range entries {
		switch e.Name() {
		case result.StdoutFile, result.StderrFile, result.SummaryFile:
			continue
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if t := info.ModTime(); name == "" || t.After(newest) || (t.Equal(newest) && e.Name() > name) {
			name, newest = e.Name(), t
		}
	}
	return name
}

func (r *Runner) escalate(res *result.JobResult, check bool) error {
	if res.ErrorCode == 0 {
		return nil
	}
	if check {
		return newJobError(res, sentinel(res.Kind))
	}
	r.logger().Warn("solver failed, continuing",
		zap.String("command", res.CommandLine),
		zap.String("dir", res.Dir),
		zap.Int("code", res.ErrorCode),
		zap.String("kind", string(res.Kind)),
		zap.String("detail", res.Detail),
		zap.String("stdout_tail", tail(res.Stdout, tailLines)),
		zap.String("stderr_tail", tail(res.Stderr, tailLines)),
	)
	return nil
}

func (r *Runner) local() executor.Executor {
	if r.Local == nil {
		return executor.NewLocal()
	}
	return r.Local
}

func (r *Runner) logger() *zap.Logger {
	return logging.OrNop(r.Log)
}

func sentinel(k result.Kind) error {
	switch k {
	case result.KindLaunch:
		return ErrLaunch
	case result.KindExit:
		return ErrNonZeroExit
	default:
		return ErrIncomplete
	}
}

func outcome(res *result.JobResult) string {
	if res.Succeeded() {
		return string(result.StateSucceeded)
	}
	return string(res.Kind)
}

func metricLabel(solver string) string {
	if solver == "" {
		return "adhoc"
	}
	return solver
}

func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
