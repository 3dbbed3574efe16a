package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := New()

	c.Put(42, Info{Kind: KindUser, AccessHash: 99, Username: "alice"})

	info, ok := c.Get(42)
	require.True(t, ok)
	require.Equal(t, KindUser, info.Kind)
	require.EqualValues(t, 99, info.AccessHash)
	require.Equal(t, "alice", info.Username)
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c := New()

	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestCachePutOverwritesOnUpsert(t *testing.T) {
	c := New()

	c.Put(1, Info{Kind: KindChat, AccessHash: 1})
	c.Put(1, Info{Kind: KindChat, AccessHash: 2})

	info, ok := c.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 2, info.AccessHash)
}

func TestCacheResolveMissFallsThrough(t *testing.T) {
	c := New()

	_, ok := c.Resolve(7)
	require.False(t, ok)
}

func TestCacheResolveHit(t *testing.T) {
	c := New()
	c.Put(7, Info{Kind: KindChannel, AccessHash: 55})

	ref, ok := c.Resolve(7)
	require.True(t, ok)
	require.Equal(t, PeerRef{Kind: KindChannel, ID: 7, AccessHash: 55}, ref)
}

func TestCacheShardsSpreadAcrossDistinctIDs(t *testing.T) {
	c := New()

	for i := int64(0); i < 1000; i++ {
		c.Put(i, Info{Kind: KindUser, AccessHash: i})
	}

	for i := int64(0); i < 1000; i++ {
		info, ok := c.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i, info.AccessHash)
	}
}
