// Package job describes one invocation of an external solver.
package job

import (
	"fmt"
	"time"

	"github.com/signalnine/simharness/internal/completion"
	"github.com/signalnine/simharness/internal/config"
)

// Job is everything needed to launch a solver command in a directory. Command
// is a text/template rendered against Params before launch.
type Job struct {
	Name    string
	Solver  string
	Dir     string
	Command string
	Params  map[string]any
	Attach  []string
	Env     map[string]string

	Completion        completion.Predicate
	CompletionTimeout time.Duration
	CheckSubprocess   bool

	Executor string // config.ExecutorLocal or config.ExecutorContainer
	Image    string
	Timeout  time.Duration
	CPUs     float64
	MemoryMB int64
}

func (j *Job) Validate() error {
	if j.Dir == "" {
		return fmt.Errorf("job %q: dir is required", j.Name)
	}
	if j.Command == "" {
		return fmt.Errorf("job %q: command is required", j.Name)
	}
	if j.Executor == config.ExecutorContainer && j.Image == "" {
		return fmt.Errorf("job %q: container executor requires an image", j.Name)
	}
	return nil
}
