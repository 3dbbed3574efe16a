package entity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/mtwire"
	"github.com/mtprotogo/core/schema"
)

type stubObject struct{}

func (stubObject) ConstructorID() uint32             { return 0x1 }
func (stubObject) Serialize(buf *mtwire.Buffer) error { return nil }

func TestWalkerUpsertsExtractedPeers(t *testing.T) {
	cache := New()

	extractor := func(obj schema.Object) []PeerRef {
		return []PeerRef{
			{Kind: KindUser, ID: 10, AccessHash: 100},
			{Kind: KindChannel, ID: 20, AccessHash: 200},
		}
	}

	w := NewWalker(cache, extractor)
	w.Observe(stubObject{})

	info, ok := cache.Get(10)
	require.True(t, ok)
	require.EqualValues(t, 100, info.AccessHash)

	info, ok = cache.Get(20)
	require.True(t, ok)
	require.Equal(t, KindChannel, info.Kind)
}

func TestWalkerNilExtractorIsNoop(t *testing.T) {
	cache := New()
	w := NewWalker(cache, nil)

	w.Observe(stubObject{})

	_, ok := cache.Get(10)
	require.False(t, ok)
}

func TestWalkerNilObjectIsNoop(t *testing.T) {
	cache := New()

	called := false
	w := NewWalker(cache, func(schema.Object) []PeerRef {
		called = true
		return nil
	})

	w.Observe(nil)
	require.False(t, called)
}
