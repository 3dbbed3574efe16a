package mtwire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/mtwire"
)

func TestBufferRoundTripIntegers(t *testing.T) {
	buf := mtwire.NewBuffer()
	buf.PutInt32(-7)
	buf.PutUint32(0xdeadbeef)
	buf.PutInt64(-123456789012345)
	buf.PutUint64(0x0102030405060708)

	dec := mtwire.NewBufferFrom(buf.Bytes())

	i32, err := dec.Int32()
	require.NoError(t, err)
	require.EqualValues(t, -7, i32)

	u32, err := dec.Uint32()
	require.NoError(t, err)
	require.EqualValues(t, 0xdeadbeef, u32)

	i64, err := dec.Int64()
	require.NoError(t, err)
	require.EqualValues(t, -123456789012345, i64)

	u64, err := dec.Uint64()
	require.NoError(t, err)
	require.EqualValues(t, 0x0102030405060708, u64)

	require.Zero(t, dec.Remaining())
}

func TestBufferRoundTripBytesAndString(t *testing.T) {
	for _, payload := range [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte("hello, mtproto"),
		make([]byte, 300),
	} {
		buf := mtwire.NewBuffer()
		buf.PutBytes(payload)

		dec := mtwire.NewBufferFrom(buf.Bytes())
		got, err := dec.DecodeBytes()
		require.NoError(t, err)
		require.Equal(t, payload, got)
		require.Zero(t, dec.Remaining())
	}

	buf := mtwire.NewBuffer()
	buf.PutString("Telegram")

	dec := mtwire.NewBufferFrom(buf.Bytes())
	s, err := dec.DecodeString()
	require.NoError(t, err)
	require.Equal(t, "Telegram", s)
}

func TestBufferBool(t *testing.T) {
	buf := mtwire.NewBuffer()
	buf.PutBool(true)
	buf.PutBool(false)

	dec := mtwire.NewBufferFrom(buf.Bytes())

	v, err := dec.Bool()
	require.NoError(t, err)
	require.True(t, v)

	v, err = dec.Bool()
	require.NoError(t, err)
	require.False(t, v)
}

func TestBufferVectorHeader(t *testing.T) {
	buf := mtwire.NewBuffer()
	buf.PutVectorHeader(3)

	dec := mtwire.NewBufferFrom(buf.Bytes())
	n, err := dec.VectorHeader()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestBufferTruncated(t *testing.T) {
	dec := mtwire.NewBufferFrom([]byte{1, 2})
	_, err := dec.Uint32()
	require.Error(t, err)
}
