package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Local runs commands through "sh -c" on the host.
type Local struct {
	Shell string
}

func NewLocal() *Local {
	return &Local{Shell: "sh"}
}

func (l *Local) Run(ctx context.Context, spec Spec) Outcome {
	start := time.Now()

	info, err := os.Stat(spec.Dir)
	if err != nil {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("job directory: %w", err)}
	}
	if !info.IsDir() {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("job directory %s is not a directory", spec.Dir)}
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(runCtx, shell, "-c", spec.CommandLine)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), envSlice(spec.Env)...)
	// Own process group so a timeout kill reaches the solver's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	out := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if spec.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.ExitCode = TimeoutExitCode
		out.TimedOut = true
		return out
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if out.ExitCode == -1 {
				// Killed by a signal, most likely ctx cancellation.
				out.StartErr = fmt.Errorf("terminated: %w", err)
			}
			return out
		}
		out.ExitCode = -1
		out.StartErr = fmt.Errorf("starting %s: %w", shell, err)
	}
	return out
}
