package rpc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRPCErrorWithValue(t *testing.T) {
	err := ParseRPCError(420, "FLOOD_WAIT_30")
	require.Equal(t, "FLOOD_WAIT_", err.Name)
	require.EqualValues(t, 30, err.Value)
}

func TestParseRPCErrorWithoutValue(t *testing.T) {
	err := ParseRPCError(401, "AUTH_KEY_UNREGISTERED")
	require.Equal(t, "AUTH_KEY_UNREGISTERED", err.Name)
	require.EqualValues(t, 0, err.Value)
}

func TestIsFloodWait(t *testing.T) {
	wait, ok := IsFloodWait(ParseRPCError(420, "FLOOD_WAIT_5"))
	require.True(t, ok)
	require.Equal(t, 5*time.Second, wait)

	_, ok = IsFloodWait(ParseRPCError(400, "PEER_ID_INVALID"))
	require.False(t, ok)
}

func TestMigrateTarget(t *testing.T) {
	dc, ok := MigrateTarget(ParseRPCError(303, "PHONE_MIGRATE_2"))
	require.True(t, ok)
	require.Equal(t, 2, dc)

	dc, ok = MigrateTarget(ParseRPCError(303, "FILE_MIGRATE_4"))
	require.True(t, ok)
	require.Equal(t, 4, dc)

	_, ok = MigrateTarget(ParseRPCError(400, "PEER_ID_INVALID"))
	require.False(t, ok)
}

func TestIsAuthKeyUnregistered(t *testing.T) {
	require.True(t, IsAuthKeyUnregistered(ParseRPCError(401, "AUTH_KEY_UNREGISTERED")))
	require.False(t, IsAuthKeyUnregistered(ParseRPCError(400, "AUTH_KEY_UNREGISTERED")))
	require.False(t, IsAuthKeyUnregistered(ParseRPCError(401, "SESSION_REVOKED")))
}

func TestIsAuthKeyDuplicated(t *testing.T) {
	require.True(t, IsAuthKeyDuplicated(ParseRPCError(406, "AUTH_KEY_DUPLICATED")))
	require.False(t, IsAuthKeyDuplicated(ParseRPCError(406, "SESSION_REVOKED")))
	require.False(t, IsAuthKeyDuplicated(nil))
}

func TestCooldownBreakerTripsAfterThreshold(t *testing.T) {
	b := newCooldownBreaker(2, 50*time.Millisecond)
	now := time.Now()

	require.True(t, b.allow(now))

	b.recordFailure(now)
	require.True(t, b.allow(now))

	b.recordFailure(now)
	require.False(t, b.allow(now))

	require.True(t, b.allow(now.Add(100*time.Millisecond)))
}

func TestCooldownBreakerResetsOnSuccess(t *testing.T) {
	b := newCooldownBreaker(2, time.Second)
	now := time.Now()

	b.recordFailure(now)
	b.recordSuccess()
	b.recordFailure(now)

	require.True(t, b.allow(now))
}

func TestRetry500SeriesPermanentErrorStopsImmediately(t *testing.T) {
	r := NewRetry500Series()

	calls := 0
	err := r.Do(func() error {
		calls++
		return ParseRPCError(400, "PEER_ID_INVALID")
	}, func(err error) bool {
		var rpcErr *RPCError
		return err != nil && errors.As(err, &rpcErr) && rpcErr.Code >= 500
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}
