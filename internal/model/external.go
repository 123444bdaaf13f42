package model

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/job"
	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/runner"
)

// ExternalSoftware runs one solver command. The hooks run in the order
// PreRun, WriteInputs, command, PostRun. Hooks receive the solver options
// overlaid with the component inputs.
type ExternalSoftware struct {
	ComponentName string
	Solver        string
	Runner        *runner.Runner

	Command           string
	Options           map[string]any
	Attach            []string
	Env               map[string]string
	Completion        completion.Predicate
	CompletionTimeout time.Duration
	CheckSubprocess   bool
	Executor          string
	Image             string
	Timeout           time.Duration
	CPUs              float64
	MemoryMB          int64

	PreRun      func(ctx context.Context, dir string, params Data) error
	WriteInputs func(dir string, params Data) error
	// PostRun runs even when the command failed; out already holds error_code.
	PostRun func(dir string, params, out Data) error

	last *result.JobResult
}

func (c *ExternalSoftware) Name() string { return c.ComponentName }

// JobResult returns the result of the last Run, or nil.
func (c *ExternalSoftware) JobResult() *result.JobResult { return c.last }

func (c *ExternalSoftware) Run(ctx context.Context, dir string, in Data) (Data, error) {
	params := Data{}
	maps.Copy(params, c.Options)
	maps.Copy(params, in)

	if c.PreRun != nil {
		if err := c.PreRun(ctx, dir, params); err != nil {
			return Data{ErrorCodeKey: -1}, fmt.Errorf("pre-run: %w", err)
		}
	}
	if c.WriteInputs != nil {
		if err := c.WriteInputs(dir, params); err != nil {
			return Data{ErrorCodeKey: -1}, fmt.Errorf("writing inputs: %w", err)
		}
	}

	res, err := c.Runner.ExecuteJob(ctx, &job.Job{
		Name:              c.ComponentName,
		Solver:            c.Solver,
		Dir:               dir,
		Command:           c.Command,
		Params:            params,
		Attach:            c.Attach,
		Env:               c.Env,
		Completion:        c.Completion,
		CompletionTimeout: c.CompletionTimeout,
		CheckSubprocess:   c.CheckSubprocess,
		Executor:          c.Executor,
		Image:             c.Image,
		Timeout:           c.Timeout,
		CPUs:              c.CPUs,
		MemoryMB:          c.MemoryMB,
	})
	c.last = res
	out := Data{ErrorCodeKey: -1}
	if res != nil {
		out[ErrorCodeKey] = res.ErrorCode
	}
	if err != nil {
		return out, err
	}

	if c.PostRun != nil {
		if err := c.PostRun(dir, params, out); err != nil {
			return out, fmt.Errorf("post-run: %w", err)
		}
	}
	return out, nil
}
