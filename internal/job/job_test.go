package job_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/job"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     job.Job
		wantErr string
	}{
		{"local", job.Job{Name: "dummy", Dir: "/tmp/x", Command: "true"}, ""},
		{"missing dir", job.Job{Name: "dummy", Command: "true"}, "dir is required"},
		{"missing command", job.Job{Name: "dummy", Dir: "/tmp/x"}, "command is required"},
		{"container without image", job.Job{Name: "couette", Dir: "/tmp/x", Command: "pyfr", Executor: config.ExecutorContainer}, "requires an image"},
		{"container", job.Job{Name: "couette", Dir: "/tmp/x", Command: "pyfr", Executor: config.ExecutorContainer, Image: "pyfr/pyfr"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
