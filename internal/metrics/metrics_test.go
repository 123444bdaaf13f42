package metrics_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/simharness/internal/metrics"
)

func TestObserveJob(t *testing.T) {
	r := metrics.New()
	r.ObserveJob("dummy", "succeeded", 0.05)
	r.ObserveJob("dummy", "succeeded", 0.06)
	r.ObserveJob("couette", "exit", 1.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.JobsTotal().WithLabelValues("dummy", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.JobsTotal().WithLabelValues("couette", "exit")))
}

func TestNilRecorder(t *testing.T) {
	var r *metrics.Recorder
	r.ObserveJob("dummy", "succeeded", 1)
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := metrics.New()
	r.ObserveJob("dummy", "incomplete", 0.1)
	path := filepath.Join(t.TempDir(), "simharness.prom")

	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `simharness_jobs_total{outcome="incomplete",solver="dummy"} 1`)
	assert.Contains(t, string(data), "simharness_job_duration_seconds_bucket")
}
