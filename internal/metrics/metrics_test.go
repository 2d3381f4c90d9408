package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
	require.NoError(t, RegisterDefault())
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	IncStart("s1")
	IncStart("s1")
	IncCrash("s1")
	IncRestart("s1")
	IncStop("s1")
	SetRunning(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(scriptStarts.WithLabelValues("s1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(scriptCrashes.WithLabelValues("s1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(scriptRestarts.WithLabelValues("s1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(scriptStops.WithLabelValues("s1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(runningScripts))

	Forget("s1")
	assert.Equal(t, 0.0, testutil.ToFloat64(scriptStarts.WithLabelValues("s1")))
}

func TestSampleProcessBadPID(t *testing.T) {
	// PID -1 never resolves; sampling must degrade to zeroes, not error.
	s := SampleProcess(-1)
	assert.Zero(t, s.CPUPercent)
	assert.Zero(t, s.MemoryMB)
}
