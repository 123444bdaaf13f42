package model

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/runner"
	"github.com/signalnine/simharness/internal/workspace"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Hooks are the built-in pieces a catalogue solver can borrow: default inputs,
// an input file writer for the run stage and an output collector for the last
// stage.
type Hooks struct {
	Defaults    Data
	WriteInputs func(dir string, params Data) error
	PostRun     func(dir string, params, out Data) error
}

var builtinHooks = map[string]Hooks{
	"dummy": {
		Defaults: Data{"x1": 2.0},
		PostRun: func(_ string, params, out Data) error {
			out["y1"] = params["x1"]
			return nil
		},
	},
	"couette": {
		Defaults: Data{
			"mu":      0.417,
			"prandtl": 0.72,
			"cp":      1005.0,
			"dt":      4e-5,
			"dx":      0.25,
			"u_w":     70.0,
		},
		WriteInputs: writeCouetteInputs,
		PostRun:     collectSolutionFiles,
	},
}

// HookNames lists the built-in hook sets.
func HookNames() []string {
	names := make([]string, 0, len(builtinHooks))
	for name := range builtinHooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CouetteInputFile is the PyFR configuration written before the run stage.
const CouetteInputFile = "couette-flow.ini"

func writeCouetteInputs(dir string, params Data) error {
	tmpl, err := templates.ReadFile("templates/couette_2d.ini.tmpl")
	if err != nil {
		return err
	}
	return workspace.RenderFile(string(tmpl), filepath.Join(dir, CouetteInputFile), params)
}

// collectSolutionFiles lists the exported VTU snapshots under solution_files.
func collectSolutionFiles(dir string, _, out Data) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.vtu"))
	if err != nil {
		return err
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Base(m))
	}
	sort.Strings(files)
	out["solution_files"] = files
	return nil
}

// Options carries what FromSolver needs beyond the solver definition.
type Options struct {
	Settings  config.Settings
	Runner    *runner.Runner
	Retention *workspace.Retention
	Log       *zap.Logger
	// BaseDir resolves relative attach paths, normally the catalogue's directory.
	BaseDir string
}

// FromSolver turns a catalogue entry into a model with up to three stages:
// pre, run and post. Attached files are staged by the first stage and the
// completion file is checked after the run stage.
func FromSolver(s *config.Solver, opts Options) *Model {
	hooks := builtinHooks[hookName(s)]

	options := make(map[string]any, len(s.Options))
	for k, v := range s.Options {
		options[k] = v
	}
	var timeout time.Duration
	if s.TimeLimitMinutes > 0 {
		timeout = time.Duration(s.TimeLimitMinutes) * time.Minute
	}
	stage := func(suffix, command string) *ExternalSoftware {
		return &ExternalSoftware{
			ComponentName:   s.Name + "/" + suffix,
			Solver:          s.Name,
			Runner:          opts.Runner,
			Command:         command,
			Options:         options,
			Env:             s.Env,
			CheckSubprocess: opts.Settings.CheckSubprocess,
			Executor:        s.Executor,
			Image:           s.Image,
			Timeout:         timeout,
			CPUs:            s.CPUs,
			MemoryMB:        s.MemoryMB,
		}
	}

	var stages []*ExternalSoftware
	if s.CommandPre != "" {
		stages = append(stages, stage("pre", s.CommandPre))
	}
	run := stage("run", s.CommandRun)
	run.WriteInputs = hooks.WriteInputs
	if s.CompletionFile != "" {
		run.Completion = completion.FileExists(s.CompletionFile)
		run.CompletionTimeout = opts.Settings.CompletionTimeout
	}
	stages = append(stages, run)
	if s.CommandPost != "" {
		stages = append(stages, stage("post", s.CommandPost))
	}
	stages[0].Attach = resolve(opts.BaseDir, s.Attach)
	stages[len(stages)-1].PostRun = hooks.PostRun

	chain := &Chain{}
	for _, st := range stages {
		chain.Components = append(chain.Components, st)
	}
	return &Model{
		Name:             s.Name,
		Chain:            chain,
		Defaults:         hooks.Defaults,
		RootDirectory:    opts.Settings.RootDirectory,
		WorkingDirectory: opts.Settings.WorkingDirectory,
		Retention:        opts.Retention,
		Log:              opts.Log,
	}
}

func hookName(s *config.Solver) string {
	if s.Hooks != "" {
		return s.Hooks
	}
	return s.Name
}

// ValidateHooks reports catalogue entries that name hooks which do not exist.
func ValidateHooks(cfg *config.Config) error {
	for _, s := range cfg.Solvers {
		if s.Hooks == "" {
			continue
		}
		if _, ok := builtinHooks[s.Hooks]; !ok {
			return fmt.Errorf("solver %q: hooks %q do not exist (available: %v)", s.Name, s.Hooks, HookNames())
		}
	}
	return nil
}

func resolve(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if base != "" && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, p)
	}
	return out
}

// Run executes a solver end to end and is the entry point used by the CLI.
func Run(ctx context.Context, s *config.Solver, opts Options, in Data) (*Execution, error) {
	return FromSolver(s, opts).Execute(ctx, in)
}
