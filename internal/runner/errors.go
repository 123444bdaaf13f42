package runner

import (
	"errors"
	"fmt"

	"github.com/signalnine/simharness/internal/result"
)

var (
	ErrLaunch      = errors.New("solver could not be launched")
	ErrNonZeroExit = errors.New("solver exited with nonzero status")
	ErrIncomplete  = errors.New("solver finished without producing its results")
)

// JobError is returned for a failed job when subprocess checking is on. Its
// message carries the command line exactly as it was run.
type JobError struct {
	Kind        result.Kind
	Code        int
	CommandLine string
	Dir         string
	Detail      string
	Err         error
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("command `%s` in %s failed (%s, error code %d)", e.CommandLine, e.Dir, e.Kind, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *JobError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error kind.
func (e *JobError) Is(target error) bool {
	switch target {
	case ErrLaunch:
		return e.Kind == result.KindLaunch
	case ErrNonZeroExit:
		return e.Kind == result.KindExit
	case ErrIncomplete:
		return e.Kind == result.KindIncomplete
	}
	return false
}

func newJobError(res *result.JobResult, cause error) *JobError {
	return &JobError{
		Kind:        res.Kind,
		Code:        res.ErrorCode,
		CommandLine: res.CommandLine,
		Dir:         res.Dir,
		Detail:      res.Detail,
		Err:         cause,
	}
}
