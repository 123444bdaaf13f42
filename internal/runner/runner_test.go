package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/executor"
	"github.com/signalnine/simharness/internal/job"
	"github.com/signalnine/simharness/internal/metrics"
	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/runner"
)

func newRunner(t *testing.T) (*runner.Runner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	r := runner.New(zap.New(core), metrics.New())
	r.PollInterval = 10 * time.Millisecond
	return r, logs
}

func TestExecuteSuccess(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()

	code, err := r.Execute(context.Background(), dir, "echo ok > out.txt", completion.FileExists("out.txt"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(filepath.Join(dir, result.StdoutFile))
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

func TestExecuteSleepDirNotEmpty(t *testing.T) {
	r, _ := newRunner(t)
	code, err := r.Execute(context.Background(), t.TempDir(), "sleep 0.05", completion.DirNotEmpty(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecuteNonZeroUnchecked(t *testing.T) {
	r, logs := newRunner(t)
	code, err := r.Execute(context.Background(), t.TempDir(), "echo broken >&2; exit 3", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	warns := logs.FilterMessage("solver failed, continuing").All()
	require.Len(t, warns, 1)
	fields := warns[0].ContextMap()
	assert.Equal(t, int64(3), fields["code"])
	assert.Equal(t, "exit", fields["kind"])
	assert.Equal(t, "broken", fields["stderr_tail"])
}

func TestExecuteNonZeroChecked(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()
	code, err := r.Execute(context.Background(), dir, "exit 1", nil, true)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "exit 1")
	assert.Contains(t, err.Error(), dir)
	assert.True(t, errors.Is(err, runner.ErrNonZeroExit))

	var jobErr *runner.JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, result.KindExit, jobErr.Kind)
	assert.Equal(t, 1, jobErr.Code)
	assert.Equal(t, "exit 1", jobErr.CommandLine)
}

func TestExecuteIncomplete(t *testing.T) {
	r, _ := newRunner(t)
	code, err := r.Execute(context.Background(), t.TempDir(), "true", completion.FileExists("never.dat"), true)
	assert.Equal(t, 1, code)
	assert.True(t, errors.Is(err, runner.ErrIncomplete))
	assert.False(t, errors.Is(err, runner.ErrNonZeroExit))
}

func TestExecutePredicateErrorIsIncomplete(t *testing.T) {
	r, _ := newRunner(t)
	broken := func(string) (bool, error) { return false, errors.New("disk on fire") }
	code, err := r.Execute(context.Background(), t.TempDir(), "true", broken, true)
	assert.Equal(t, 1, code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrIncomplete))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExecuteMissingDirectory(t *testing.T) {
	r, _ := newRunner(t)
	dir := filepath.Join(t.TempDir(), "missing")

	code, err := r.Execute(context.Background(), dir, "true", nil, false)
	require.NoError(t, err)
	assert.Equal(t, -1, code)

	code, err = r.Execute(context.Background(), dir, "true", nil, true)
	assert.Equal(t, -1, code)
	assert.True(t, errors.Is(err, runner.ErrLaunch))
	assert.Contains(t, err.Error(), dir)
}

func TestExecuteJob(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()
	input := filepath.Join(t.TempDir(), "mesh.msh")
	require.NoError(t, os.WriteFile(input, []byte("mesh"), 0o644))

	j := &job.Job{
		Name:       "couette_001",
		Solver:     "couette",
		Dir:        dir,
		Command:    "cat mesh.msh > solution-{{ .backend }}.dat",
		Params:     map[string]any{"backend": "openmp"},
		Attach:     []string{input},
		Completion: completion.FileExists("solution-openmp.dat"),
	}
	res, err := r.ExecuteJob(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, result.StateSucceeded, res.State)
	assert.Equal(t, "cat mesh.msh > solution-openmp.dat", res.CommandLine)
	assert.Equal(t, 0, res.ErrorCode)

	summary, err := result.ReadSummary(filepath.Join(dir, result.SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, "couette_001", summary.Name)
	assert.Equal(t, result.StateSucceeded, summary.State)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.JobsTotal().WithLabelValues("couette", "succeeded")))
}

func TestExecuteJobMissingParam(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.ExecuteJob(context.Background(), &job.Job{
		Name:    "x",
		Dir:     t.TempDir(),
		Command: "pyfr run -b {{ .backend }}",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestExecuteJobWaitsForCompletion(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()
	res, err := r.ExecuteJob(context.Background(), &job.Job{
		Name:              "late",
		Dir:               dir,
		Command:           "(sleep 0.1; touch done.flag) >/dev/null 2>&1 &",
		Completion:        completion.FileExists("done.flag"),
		CompletionTimeout: 2 * time.Second,
		CheckSubprocess:   true,
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestExecuteJobLogsProgressWhileWaiting(t *testing.T) {
	r, logs := newRunner(t)
	res, err := r.ExecuteJob(context.Background(), &job.Job{
		Name:              "snapshots",
		Dir:               t.TempDir(),
		Command:           "(sleep 0.05; touch couette-flow-001.pyfrs; sleep 0.2; touch couette-flow-010.pyfrs) >/dev/null 2>&1 &",
		Completion:        completion.FileExists("couette-flow-010.pyfrs"),
		CompletionTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	var seen []string
	for _, e := range logs.FilterMessage("waiting for completion").All() {
		seen = append(seen, e.ContextMap()["latest_output"].(string))
	}
	assert.Contains(t, seen, "couette-flow-001.pyfrs")
}

func TestExecuteJobTimeout(t *testing.T) {
	r, _ := newRunner(t)
	res, err := r.ExecuteJob(context.Background(), &job.Job{
		Name:    "slow",
		Dir:     t.TempDir(),
		Command: "sleep 5",
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, executor.TimeoutExitCode, res.ErrorCode)
	assert.Equal(t, result.KindExit, res.Kind)
	assert.Equal(t, result.StateFailed, res.State)
}

type fakeExecutor struct {
	specs []executor.Spec
	out   executor.Outcome
}

func (f *fakeExecutor) Run(_ context.Context, spec executor.Spec) executor.Outcome {
	f.specs = append(f.specs, spec)
	return f.out
}

func TestExecuteJobUsesContainerExecutor(t *testing.T) {
	r, _ := newRunner(t)
	fake := &fakeExecutor{}
	r.Container = fake

	res, err := r.ExecuteJob(context.Background(), &job.Job{
		Name:     "docker",
		Dir:      t.TempDir(),
		Command:  "pyfr run",
		Executor: "container",
		Image:    "pyfr/pyfr:latest",
		Env:      map[string]string{"OMP_NUM_THREADS": "4"},
		CPUs:     2,
		MemoryMB: 512,
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	require.Len(t, fake.specs, 1)
	assert.Equal(t, "pyfr/pyfr:latest", fake.specs[0].Image)
	assert.Equal(t, "4", fake.specs[0].Env["OMP_NUM_THREADS"])
	assert.Equal(t, 2.0, fake.specs[0].CPUs)
	assert.Equal(t, int64(512), fake.specs[0].MemoryMB)
}
