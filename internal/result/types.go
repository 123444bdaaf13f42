package result

import "time"

// State is where a job is in its lifecycle. Transitions are linear:
// pending -> running -> succeeded | failed.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Kind classifies why a job failed.
type Kind string

const (
	KindNone       Kind = ""
	KindLaunch     Kind = "launch"
	KindExit       Kind = "exit"
	KindIncomplete Kind = "incomplete"
)

// JobResult is produced once per job invocation. Stdout and Stderr are kept
// as raw log files next to the summary rather than inside it.
type JobResult struct {
	Name        string    `json:"name"`
	Solver      string    `json:"solver"`
	Dir         string    `json:"dir"`
	CommandLine string    `json:"command_line"`
	State       State     `json:"state"`
	Kind        Kind      `json:"kind,omitempty"`
	ErrorCode   int       `json:"error_code"`
	ExitCode    int       `json:"exit_code"`
	TimedOut    bool      `json:"timed_out,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationS   float64   `json:"duration_s"`
	Archive     string    `json:"archive,omitempty"`

	Stdout string `json:"-"`
	Stderr string `json:"-"`
}

func (r *JobResult) Succeeded() bool {
	return r.State == StateSucceeded
}
