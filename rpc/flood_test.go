package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestKindLimiterAllowsWithinBurst(t *testing.T) {
	kl := NewKindLimiter(rate.Limit(1), 2, time.Minute)
	defer kl.Stop()

	require.True(t, kl.Allow("messages.send"))
	require.True(t, kl.Allow("messages.send"))
	require.False(t, kl.Allow("messages.send"))
}

func TestKindLimiterTracksKindsIndependently(t *testing.T) {
	kl := NewKindLimiter(rate.Limit(1), 1, time.Minute)
	defer kl.Stop()

	require.True(t, kl.Allow("a"))
	require.False(t, kl.Allow("a"))
	require.True(t, kl.Allow("b"))
}

func TestAwaitFloodWaitSleepsWithinThreshold(t *testing.T) {
	ok := AwaitFloodWait(context.Background(), 10*time.Millisecond)
	require.True(t, ok)
}

func TestAwaitFloodWaitRejectsAboveThreshold(t *testing.T) {
	ok := AwaitFloodWait(context.Background(), FloodWaitThreshold+time.Second)
	require.False(t, ok)
}

func TestAwaitFloodWaitRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := AwaitFloodWait(ctx, time.Second)
	require.False(t, ok)
}
