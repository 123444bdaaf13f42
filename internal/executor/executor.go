// Package executor launches a rendered solver command line, either as a local
// process or inside a container, and reports how it ended.
package executor

import (
	"context"
	"time"
)

// TimeoutExitCode is reported when a command is killed for exceeding its time limit.
const TimeoutExitCode = 124

// Spec is one command invocation inside a job directory.
type Spec struct {
	Dir         string
	CommandLine string
	Env         map[string]string
	Image       string
	Timeout     time.Duration

	// CPUs and MemoryMB cap a container run. Zero means no limit.
	CPUs     float64
	MemoryMB int64
}

// Outcome describes a finished invocation. StartErr is set when the command
// never ran (missing directory, shell not found, image pull failure); ExitCode
// is then -1.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	StartErr error
}

// Executor runs one Spec to completion. Failures are reported in the Outcome.
type Executor interface {
	Run(ctx context.Context, spec Spec) Outcome
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
