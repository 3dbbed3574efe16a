package mtproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMsgIDGeneratorStrictlyIncreasing(t *testing.T) {
	gen := NewMsgIDGenerator()

	var last int64

	for i := 0; i < 1000; i++ {
		id := gen.Next()
		require.Greater(t, id, last)

		last = id
	}
}

func TestMsgIDGeneratorAdjustOffset(t *testing.T) {
	gen := NewMsgIDGenerator()
	require.Equal(t, time.Duration(0), gen.Offset())

	gen.AdjustOffset(5 * time.Second)
	require.Equal(t, 5*time.Second, gen.Offset())

	first := gen.Next()
	gen.AdjustOffset(10 * time.Minute)

	second := gen.Next()
	require.Greater(t, second, first)
}

func TestIsContentMessageID(t *testing.T) {
	require.True(t, IsContentMessageID(1))
	require.True(t, IsContentMessageID(3))
	require.False(t, IsContentMessageID(0))
	require.False(t, IsContentMessageID(2))
}
