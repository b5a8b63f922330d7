package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleConcurrency(t *testing.T) {
	th := NewThrottle(2, 0, nil)

	require.True(t, th.Acquire(1))
	require.False(t, th.Acquire(1), "already teaching node 1")
	require.True(t, th.Acquire(2))
	require.False(t, th.Acquire(3), "limit reached")
	require.Equal(t, 2, th.Active())

	th.Release(1)
	require.True(t, th.Acquire(3))
	require.Equal(t, 2, th.Active())
}

func TestThrottleMinInterval(t *testing.T) {
	now := time.Unix(1000, 0)
	th := NewThrottle(5, time.Minute, func() time.Time { return now })

	require.True(t, th.Acquire(1))
	th.Release(1)

	now = now.Add(30 * time.Second)
	require.False(t, th.Acquire(1), "too soon")
	require.True(t, th.Acquire(2), "other learners are not affected")
	th.Release(2)

	now = now.Add(31 * time.Second)
	require.True(t, th.Acquire(1))
}
