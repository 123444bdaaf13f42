package model_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/executor"
	"github.com/signalnine/simharness/internal/model"
	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/runner"
	"github.com/signalnine/simharness/internal/workspace"
)

type stubComponent struct {
	name string
	out  model.Data
	err  error
	seen model.Data
}

func (s *stubComponent) Name() string { return s.name }

func (s *stubComponent) Run(_ context.Context, _ string, in model.Data) (model.Data, error) {
	s.seen = in
	return s.out, s.err
}

func TestChainMergesOutputs(t *testing.T) {
	first := &stubComponent{name: "a", out: model.Data{"mesh": "m.msh", model.ErrorCodeKey: 0}}
	second := &stubComponent{name: "b", out: model.Data{"y": 2.0, model.ErrorCodeKey: 0}}
	chain := &model.Chain{Components: []model.Component{first, second}}

	out, err := chain.Run(context.Background(), t.TempDir(), model.Data{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "m.msh", second.seen["mesh"])
	assert.Equal(t, 1.0, second.seen["x"])
	assert.Equal(t, 2.0, out["y"])
	assert.Equal(t, 0, out.ErrorCode())
}

func TestChainKeepsFirstErrorCode(t *testing.T) {
	run := &stubComponent{name: "run", out: model.Data{model.ErrorCodeKey: 3}}
	post := &stubComponent{name: "post", out: model.Data{model.ErrorCodeKey: 0}}
	chain := &model.Chain{Components: []model.Component{run, post}}

	out, err := chain.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, post.seen.ErrorCode(), "downstream component sees the failure")
	assert.Equal(t, 3, out.ErrorCode())
}

func TestChainStopOnError(t *testing.T) {
	run := &stubComponent{name: "run", out: model.Data{model.ErrorCodeKey: 1}}
	post := &stubComponent{name: "post"}
	chain := &model.Chain{Components: []model.Component{run, post}, StopOnError: true}

	out, err := chain.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Nil(t, post.seen)
	assert.Equal(t, 1, out.ErrorCode())
}

func TestChainReturnsComponentError(t *testing.T) {
	boom := errors.New("boom")
	chain := &model.Chain{Components: []model.Component{
		&stubComponent{name: "run", err: boom},
		&stubComponent{name: "post"},
	}}
	_, err := chain.Run(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "component run")
}

func TestExternalSoftwareHookOrder(t *testing.T) {
	var calls []string
	c := &model.ExternalSoftware{
		ComponentName: "solver/run",
		Solver:        "solver",
		Runner:        runner.New(nil, nil),
		Command:       "cat input.txt > output.txt",
		Options:       map[string]any{"greeting": "hello"},
		Completion:    completion.FileExists("output.txt"),
		PreRun: func(_ context.Context, _ string, _ model.Data) error {
			calls = append(calls, "pre")
			return nil
		},
		WriteInputs: func(dir string, params model.Data) error {
			calls = append(calls, "inputs")
			return os.WriteFile(filepath.Join(dir, "input.txt"), []byte(params["greeting"].(string)), 0o644)
		},
		PostRun: func(dir string, _, out model.Data) error {
			calls = append(calls, "post")
			data, err := os.ReadFile(filepath.Join(dir, "output.txt"))
			out["greeting"] = string(data)
			return err
		},
	}
	out, err := c.Run(context.Background(), t.TempDir(), model.Data{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "inputs", "post"}, calls)
	assert.Equal(t, "hello", out["greeting"])
	assert.Equal(t, 0, out.ErrorCode())
	require.NotNil(t, c.JobResult())
	assert.True(t, c.JobResult().Succeeded())
}

func TestExternalSoftwareErrorCodeUnchecked(t *testing.T) {
	postRan := false
	c := &model.ExternalSoftware{
		ComponentName: "failing",
		Runner:        runner.New(nil, nil),
		Command:       "exit 4",
		PostRun: func(string, model.Data, model.Data) error {
			postRan = true
			return nil
		},
	}
	out, err := c.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, out.ErrorCode())
	assert.True(t, postRan)
}

func TestExternalSoftwareChecked(t *testing.T) {
	c := &model.ExternalSoftware{
		ComponentName:   "failing",
		Runner:          runner.New(nil, nil),
		Command:         "exit 1",
		CheckSubprocess: true,
	}
	out, err := c.Run(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, runner.ErrNonZeroExit)
	assert.Contains(t, err.Error(), "exit 1")
	assert.Equal(t, 1, out.ErrorCode())
}

func TestDummyModel(t *testing.T) {
	root := t.TempDir()
	settings := config.Settings{RootDirectory: root, Retention: config.RetentionKeep}
	solver := &config.Solver{Name: "dummy", Executor: config.ExecutorLocal, CommandRun: "sleep 0.05"}

	exec, err := model.Run(context.Background(), solver, model.Options{Settings: settings, Runner: runner.New(nil, nil)}, model.Data{"x1": 5.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, exec.Outputs["y1"])
	assert.Equal(t, 0, exec.Outputs.ErrorCode())
	assert.DirExists(t, exec.Dir)
	assert.Equal(t, filepath.Join(root, workspace.JobsDir), filepath.Dir(exec.Dir))

	summary, err := result.ReadSummary(filepath.Join(exec.Dir, result.SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, "dummy", summary.Solver)
	assert.Equal(t, result.StateSucceeded, summary.State)
	assert.Equal(t, "sleep 0.05", summary.CommandLine)
}

func TestDummyModelDefaults(t *testing.T) {
	settings := config.Settings{RootDirectory: t.TempDir()}
	solver := &config.Solver{Name: "dummy", CommandRun: "true"}
	exec, err := model.Run(context.Background(), solver, model.Options{Settings: settings, Runner: runner.New(nil, nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, exec.Outputs["y1"])
}

func TestModelRetentionDeletesSuccessKeepsFailure(t *testing.T) {
	root := t.TempDir()
	settings := config.Settings{RootDirectory: root, Retention: config.RetentionDelete, KeepFailed: true}
	ret, err := workspace.NewRetention(context.Background(), settings, nil)
	require.NoError(t, err)
	opts := model.Options{Settings: settings, Runner: runner.New(nil, nil), Retention: ret}

	ok, err := model.Run(context.Background(), &config.Solver{Name: "ok", CommandRun: "true"}, opts, nil)
	require.NoError(t, err)
	assert.NoDirExists(t, ok.Dir)

	bad, err := model.Run(context.Background(), &config.Solver{Name: "bad", CommandRun: "exit 2"}, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, bad.Outputs.ErrorCode())
	assert.DirExists(t, bad.Dir)
	assert.Equal(t, result.KindExit, bad.Summary.Kind)
}

func TestModelFixedWorkingDirectory(t *testing.T) {
	wd := filepath.Join(t.TempDir(), "case")
	settings := config.Settings{RootDirectory: t.TempDir(), WorkingDirectory: wd, Retention: config.RetentionDelete}
	ret, err := workspace.NewRetention(context.Background(), settings, nil)
	require.NoError(t, err)

	exec, err := model.Run(context.Background(), &config.Solver{Name: "dummy", CommandRun: "true"},
		model.Options{Settings: settings, Runner: runner.New(nil, nil), Retention: ret}, nil)
	require.NoError(t, err)
	assert.Equal(t, wd, exec.Dir)
	assert.DirExists(t, wd, "retention never removes a fixed working directory")
}

func TestCouetteStages(t *testing.T) {
	meshDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(meshDir, "couette-flow.msh"), []byte("$MeshFormat"), 0o644))

	// Stand-in commands so the chain runs without PyFR installed.
	solver := &config.Solver{
		Name:           "couette",
		CommandPre:     "cp couette-flow.msh couette-flow.pyfrm",
		CommandRun:     "grep -q 'u = {{ .u_w }}' couette-flow.ini && touch couette-flow-010.pyfrs && echo {{ .backend }}",
		CommandPost:    "touch couette-flow-010.vtu couette-flow-000.vtu",
		CompletionFile: "couette-flow-010.pyfrs",
		Attach:         []string{"couette-flow.msh"},
		Options:        map[string]string{"backend": "openmp"},
	}
	settings := config.Settings{RootDirectory: t.TempDir(), CompletionTimeout: time.Second, PollInterval: 10 * time.Millisecond}
	exec, err := model.Run(context.Background(), solver,
		model.Options{Settings: settings, Runner: runner.New(nil, nil), BaseDir: meshDir},
		model.Data{"u_w": 35.0})
	require.NoError(t, err)
	assert.Equal(t, 0, exec.Outputs.ErrorCode())
	assert.Equal(t, []string{"couette-flow-000.vtu", "couette-flow-010.vtu"}, exec.Outputs["solution_files"])

	ini, err := os.ReadFile(filepath.Join(exec.Dir, model.CouetteInputFile))
	require.NoError(t, err)
	assert.Contains(t, string(ini), "mu = 0.417")
	assert.Contains(t, string(ini), "basename = couette-flow-{t:03.0f}")

	stdout, err := os.ReadFile(filepath.Join(exec.Dir, result.StdoutFile))
	require.NoError(t, err)
	assert.Equal(t, "openmp\n", string(stdout))
}

func TestCouetteIncomplete(t *testing.T) {
	solver := &config.Solver{
		Name:           "couette",
		CommandRun:     "true",
		CompletionFile: "couette-flow-010.pyfrs",
	}
	settings := config.Settings{RootDirectory: t.TempDir()}
	exec, err := model.Run(context.Background(), solver, model.Options{Settings: settings, Runner: runner.New(nil, nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.Outputs.ErrorCode())
	assert.Equal(t, result.KindIncomplete, exec.Summary.Kind)
}

type recordingExecutor struct {
	specs []executor.Spec
}

func (e *recordingExecutor) Run(_ context.Context, spec executor.Spec) executor.Outcome {
	e.specs = append(e.specs, spec)
	return executor.Outcome{}
}

func TestContainerSolverLimits(t *testing.T) {
	rec := &recordingExecutor{}
	r := runner.New(nil, nil)
	r.Container = rec
	solver := &config.Solver{
		Name:       "couette-docker",
		Hooks:      "dummy",
		Executor:   config.ExecutorContainer,
		Image:      "pyfr/pyfr:latest",
		CommandRun: "pyfr run",
		CPUs:       4,
		MemoryMB:   2048,
	}
	_, err := model.Run(context.Background(), solver, model.Options{Settings: config.Settings{RootDirectory: t.TempDir()}, Runner: r}, nil)
	require.NoError(t, err)
	require.Len(t, rec.specs, 1)
	assert.Equal(t, 4.0, rec.specs[0].CPUs)
	assert.Equal(t, int64(2048), rec.specs[0].MemoryMB)
	assert.Equal(t, "pyfr/pyfr:latest", rec.specs[0].Image)
}

func TestValidateHooks(t *testing.T) {
	cfg := &config.Config{Solvers: []config.Solver{{Name: "x", CommandRun: "true", Hooks: "nope"}}}
	err := model.ValidateHooks(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	cfg.Solvers[0].Hooks = "couette"
	assert.NoError(t, model.ValidateHooks(cfg))
}
