package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/session"
)

func TestStoreAuthKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, ok, err := store.LoadAuthKey(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveAuthKey(ctx, 2, []byte("secret")))

	key, ok, err := store.LoadAuthKey(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("secret"), key)

	require.NoError(t, store.ClearAuthKey(ctx, 2))

	_, ok, err = store.LoadAuthKey(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreUpdateStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, ok, err := store.LoadUpdateState(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveUpdateState(ctx, session.UpdateState{Pts: 10, Qts: 1, Date: 100, Seq: 2}))

	state, ok, err := store.LoadUpdateState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 10, state.Pts)
}

func TestStoreChannelStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.SaveChannelState(ctx, 555, 42))

	pts, ok, err := store.LoadChannelState(ctx, 555)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, pts)
}

func TestStoreEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.PutEntity(ctx, session.EntityRecord{ID: 9, AccessHash: 123, Username: "bob"}))

	record, ok, err := store.GetEntity(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 123, record.AccessHash)
}

func TestStoreTxCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	store := New()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.SaveAuthKey(ctx, 1, []byte("k")))
	require.NoError(t, tx.SaveDatacenter(ctx, session.Datacenter{ID: 1, Address: "1.2.3.4:443", Home: true}))
	require.NoError(t, tx.Commit())

	key, ok, err := store.LoadAuthKey(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("k"), key)

	dc, ok, err := store.LoadDatacenter(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, dc.Home)
}

func TestStoreTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := New()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.SaveAuthKey(ctx, 1, []byte("k")))
	require.NoError(t, tx.Rollback())

	_, ok, err := store.LoadAuthKey(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreTxCommitTwiceErrors(t *testing.T) {
	ctx := context.Background()
	store := New()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())
}

func TestStoreAuthKeyCopyIsIndependentOfCaller(t *testing.T) {
	ctx := context.Background()
	store := New()

	original := []byte("mutate-me")
	require.NoError(t, store.SaveAuthKey(ctx, 1, original))
	original[0] = 'X'

	key, _, err := store.LoadAuthKey(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("mutate-me"), key)
}
