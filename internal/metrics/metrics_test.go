package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.CommandEnqueued(1)
		c.CommandPopped(0)
		c.CommandsReaped(2, 0)
		c.ResultDelivered()
		c.ResultDiscarded()
		c.NotifyFailed()
		c.SessionsActive(3)
		c.LifecycleFired("post_load", 1, 1, 0)
	})
}

func TestCollectorCounts(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.CommandEnqueued(1)
	c.CommandEnqueued(2)
	c.CommandPopped(1)
	c.CommandsReaped(1, 0)
	c.ResultDelivered()
	c.ResultDiscarded()
	c.NotifyFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.commandsEnqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsPopped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsReaped))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resultsDelivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resultsDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifyFailures))
}

func TestLifecycleLabels(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.LifecycleFired("post_start", 2, 3, 1)
	c.LifecycleFired("post_start", 0, 3, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.lifecycleFired.WithLabelValues("post_start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.lifecycleTasks.WithLabelValues("post_start", "oneshot")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.lifecycleTasks.WithLabelValues("post_start", "durable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lifecycleFailures.WithLabelValues("post_start")))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
