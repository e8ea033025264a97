package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewManagerRegistersCollectors verifies every collector is registered under
// the namespace and subsystem and starts from zero.
func TestNewManagerRegistersCollectors(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()

	m.CounterFrames.WithLabelValues("squat").Inc()
	m.CounterFrames.WithLabelValues("squat").Inc()
	m.CounterReps.WithLabelValues("squat", "true").Inc()
	m.CounterHeartRateFailures.Inc()
	m.GaugeActiveSessions.Set(3)
	m.GaugeHeartRate.Set(97)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterFrames.WithLabelValues("squat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterReps.WithLabelValues("squat", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterHeartRateFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GaugeActiveSessions))
	assert.Equal(t, 97.0, testutil.ToFloat64(m.GaugeHeartRate))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["repcoach_test_frames_processed_total"] || names["repcoach_test_frames_processed"])
	assert.True(t, names["repcoach_test_active_sessions"])
}

// TestManagersAreIndependent verifies two test managers do not collide on registration.
func TestManagersAreIndependent(t *testing.T) {
	a := NewTestManager()
	b := NewTestManager()
	a.CounterSessionsPersisted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CounterSessionsPersisted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CounterSessionsPersisted))
}

// TestNewRegistryIncludesRuntime verifies the process registry exposes Go runtime metrics.
func TestNewRegistryIncludesRuntime(t *testing.T) {
	reg := NewRegistry()
	NewManager("repcoach", "", reg)
	families, err := reg.Gather()
	require.NoError(t, err)
	var sawGo bool
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			sawGo = true
		}
	}
	assert.True(t, sawGo)
}
