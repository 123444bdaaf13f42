// Package model chains solver components that share one job directory and
// wraps them with workspace creation and retention.
package model

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/logging"
	"github.com/signalnine/simharness/internal/result"
	"github.com/signalnine/simharness/internal/workspace"
)

// ErrorCodeKey is set by every external software component.
const ErrorCodeKey = "error_code"

// Data carries inputs into a component and outputs out of it.
type Data map[string]any

// ErrorCode reads the error code from d. A missing code is 0.
func (d Data) ErrorCode() int {
	switch v := d[ErrorCodeKey].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Component is one step of a model. Its output data is merged into the inputs
// of the next step.
type Component interface {
	Name() string
	Run(ctx context.Context, dir string, in Data) (Data, error)
}

// Chain runs components in order in the same directory. Each component sees
// the inputs merged with all earlier outputs. The first nonzero error code is
// kept so later components cannot mask it.
type Chain struct {
	Components []Component
	// StopOnError skips the remaining components once an error code is set.
	StopOnError bool
}

func (c *Chain) Run(ctx context.Context, dir string, in Data) (Data, error) {
	data := maps.Clone(in)
	if data == nil {
		data = Data{}
	}
	for _, comp := range c.Components {
		code := data.ErrorCode()
		out, err := comp.Run(ctx, dir, data)
		maps.Copy(data, out)
		if code != 0 {
			data[ErrorCodeKey] = code
		}
		if err != nil {
			return data, fmt.Errorf("component %s: %w", comp.Name(), err)
		}
		if c.StopOnError && data.ErrorCode() != 0 {
			break
		}
	}
	return data, nil
}

// Model is a solver chain bound to a workspace.
type Model struct {
	Name     string
	Chain    *Chain
	Defaults Data

	RootDirectory    string
	WorkingDirectory string
	Retention        *workspace.Retention
	Log              *zap.Logger
}

// Execution is what one model run leaves behind.
type Execution struct {
	Dir     string
	Outputs Data
	Summary *result.JobResult
	Archive string
}

// Execute creates a job directory, runs the chain in it with in layered over
// the model defaults, writes the model summary and applies retention. The
// retention policy only touches generated directories, never a fixed
// working directory.
func (m *Model) Execute(ctx context.Context, in Data) (*Execution, error) {
	log := logging.OrNop(m.Log).With(zap.String("model", m.Name))
	dir, err := workspace.Create(m.RootDirectory, m.WorkingDirectory, m.Name)
	if err != nil {
		return nil, err
	}
	inputs := maps.Clone(m.Defaults)
	if inputs == nil {
		inputs = Data{}
	}
	maps.Copy(inputs, in)

	log.Info("executing model", zap.String("dir", dir))
	out, runErr := m.Chain.Run(ctx, dir, inputs)
	exec := &Execution{Dir: dir, Outputs: out, Summary: m.summarize(dir, out)}
	if err := result.WriteSummary(dir, exec.Summary); err != nil {
		log.Warn("writing model summary", zap.Error(err))
	}

	if m.Retention != nil && m.WorkingDirectory == "" {
		failed := runErr != nil || out.ErrorCode() != 0
		archive, err := m.Retention.Apply(ctx, dir, failed)
		if err != nil {
			log.Warn("applying retention", zap.Error(err))
		}
		exec.Archive = archive
	}
	if runErr != nil {
		return exec, runErr
	}
	log.Info("model finished", zap.Int("error_code", out.ErrorCode()))
	return exec, nil
}

// jobRunner is implemented by components that launch a solver job.
type jobRunner interface {
	JobResult() *result.JobResult
}

// summarize folds the job results of the chain into one record: the first
// failed job decides the outcome, durations add up.
func (m *Model) summarize(dir string, out Data) *result.JobResult {
	sum := &result.JobResult{
		Name:   filepath.Base(dir),
		Solver: m.Name,
		Dir:    dir,
		State:  result.StateSucceeded,
	}
	for _, comp := range m.Chain.Components {
		jr, ok := comp.(jobRunner)
		if !ok || jr.JobResult() == nil {
			continue
		}
		res := jr.JobResult()
		if sum.StartedAt.IsZero() {
			sum.StartedAt = res.StartedAt
		}
		sum.DurationS += res.DurationS
		if sum.State == result.StateSucceeded {
			sum.CommandLine = res.CommandLine
			sum.ExitCode = res.ExitCode
			if !res.Succeeded() {
				sum.State = result.StateFailed
				sum.Kind = res.Kind
				sum.ErrorCode = res.ErrorCode
				sum.TimedOut = res.TimedOut
				sum.Detail = res.Detail
			}
		}
	}
	if code := out.ErrorCode(); code != 0 && sum.State == result.StateSucceeded {
		sum.State = result.StateFailed
		sum.ErrorCode = code
	}
	return sum
}
