package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	tb := NewTokenBucket(3, 1, time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, tb.Allow())
	}
	require.False(t, tb.Allow())
	require.Equal(t, 0, tb.GetRemaining())
}

func TestSlidingWindowLimit(t *testing.T) {
	sw := NewSlidingWindow(2, time.Minute)
	require.True(t, sw.Allow())
	require.True(t, sw.Allow())
	require.False(t, sw.Allow())
	require.Equal(t, 0, sw.GetRemaining())
}

func TestManagerKeysAreIndependent(t *testing.T) {
	m := NewManager()

	// drain one client's budget for the jobs class
	for i := 0; i < 20; i++ {
		require.True(t, m.Allow("api:jobs:203.0.113.7"))
	}
	require.False(t, m.Allow("api:jobs:203.0.113.7"))

	// a different client under the same class is untouched
	require.True(t, m.Allow("api:jobs:203.0.113.8"))
	// and so is the same client under another class
	require.True(t, m.Allow("api:render:203.0.113.7"))
}

func TestManagerLazyClassBudgets(t *testing.T) {
	m := NewManager()
	require.Equal(t, 30, m.GetLimiter("api:render:10.0.0.1").GetRemaining())
	require.Equal(t, 20, m.GetLimiter("api:jobs:10.0.0.1").GetRemaining())
	require.Equal(t, 300, m.GetLimiter("api:default:10.0.0.1").GetRemaining())
	require.Equal(t, 60, m.GetLimiter("fetch:cdn.test").GetRemaining())
	require.Equal(t, 600, m.GetLimiter("misc:thing").GetRemaining())
}
