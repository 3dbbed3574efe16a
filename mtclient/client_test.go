package mtclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/authkey"
	"github.com/mtprotogo/core/dcmanager"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/session/memstore"
	"github.com/mtprotogo/core/updates"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := Config{
		HomeDC:     2,
		Directory:  dcmanager.MapDCDirectory{2: {"149.154.167.50:443"}},
		PublicKeys: authkey.MapPublicKeys{},
		Store:      memstore.New(),
		Logger:     mtclog.Noop(),
		DecodeUpdates: func(dcID int, payload []byte) ([]UpdateEnvelope, error) {
			return []UpdateEnvelope{{
				Key:    updates.ChannelKey{AccountID: 1},
				Update: updates.Update{Payload: payload, Pts: 1},
			}}, nil
		},
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewWiresEveryComponent(t *testing.T) {
	c := newTestClient(t)

	require.NotNil(t, c.mgr)
	require.NotNil(t, c.disp)
	require.NotNil(t, c.pipeline)
	require.NotNil(t, c.dispatch)
	require.NotNil(t, c.cache)
	require.Equal(t, 2, c.mgr.HomeDC())
}

func TestConstructionFailsOnInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestBeginEndTakeoutDelegatesToManager(t *testing.T) {
	c := newTestClient(t)

	_, active := c.mgr.ActiveTakeout(2)
	require.False(t, active)

	c.BeginTakeout(2, 999)

	id, active := c.mgr.ActiveTakeout(2)
	require.True(t, active)
	require.Equal(t, int64(999), id)

	c.EndTakeout(2)

	_, active = c.mgr.ActiveTakeout(2)
	require.False(t, active)
}

func TestOnRawUpdatesDecodesAndDeliversThroughPipeline(t *testing.T) {
	c := newTestClient(t)

	c.onRawUpdates(2, []byte("raw-update-payload"))

	select {
	case applied := <-c.Updates():
		require.Equal(t, int64(1), applied.AccountID)
		require.Equal(t, []byte("raw-update-payload"), applied.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for applied update")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
