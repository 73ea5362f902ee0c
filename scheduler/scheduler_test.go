package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleFiresRepeatedly(t *testing.T) {
	var count int32
	c := NewCycle(5*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 3
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestCycleStopBlocksUntilGoroutineExits(t *testing.T) {
	var count int32
	c := NewCycle(2*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	observed := atomic.LoadInt32(&count)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, observed, atomic.LoadInt32(&count), "fn should not run after Stop returns")
}

func TestCycleStartIsIdempotent(t *testing.T) {
	c := NewCycle(time.Hour, func() {})
	c.Start()
	c.Start()
	assert.True(t, c.Running())
	c.Stop()
	assert.False(t, c.Running())
}

func TestCycleStopIsIdempotent(t *testing.T) {
	c := NewCycle(time.Hour, func() {})
	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestCycleRestartDoesNotLoseWakeups(t *testing.T) {
	var count int32
	c := NewCycle(5*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	c.Start()
	time.Sleep(15 * time.Millisecond)
	c.Stop()
	firstRun := atomic.LoadInt32(&count)
	require.Greater(t, firstRun, int32(0))

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) > firstRun
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerStartAllSkipsZeroIntervalCycles(t *testing.T) {
	var validateCount, heartbeatCount int32
	s := New(5*time.Millisecond, func() { atomic.AddInt32(&validateCount, 1) }, 0, func() { atomic.AddInt32(&heartbeatCount, 1) })

	s.StartAll()
	defer s.StopAll()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&validateCount) >= 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	assert.False(t, s.Heartbeat.Running())
	assert.Equal(t, int32(0), atomic.LoadInt32(&heartbeatCount))
}
