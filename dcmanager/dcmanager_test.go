package dcmanager

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/transport"
)

func TestMapDCDirectoryIsKnown(t *testing.T) {
	dir := MapDCDirectory{1: {"1.2.3.4:443"}, 2: {"5.6.7.8:443"}}

	require.True(t, dir.IsKnown(1))
	require.False(t, dir.IsKnown(3))
	require.ElementsMatch(t, []string{"1.2.3.4:443"}, dir.Addresses(1))
}

func TestMapDCDirectoryRandomDCExcluding(t *testing.T) {
	dir := MapDCDirectory{1: nil, 2: nil}

	got := dir.RandomDCExcluding(1)
	require.Equal(t, 2, got)
}

type fakeKeyStore struct {
	keys map[int][]byte
	salt map[int]uint64
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: map[int][]byte{}, salt: map[int]uint64{}}
}

func (f *fakeKeyStore) LoadAuthKey(dcID int) ([]byte, uint64, bool, error) {
	k, ok := f.keys[dcID]
	return k, f.salt[dcID], ok, nil
}

func (f *fakeKeyStore) SaveAuthKey(dcID int, key []byte, salt uint64) error {
	f.keys[dcID] = key
	f.salt[dcID] = salt

	return nil
}

func (f *fakeKeyStore) ClearAuthKey(dcID int) error {
	delete(f.keys, dcID)
	delete(f.salt, dcID)

	return nil
}

type noopHandler struct{}

func (noopHandler) OnMsgsAck(ids []int64)                                 {}
func (noopHandler) OnBadServerSalt(badMsgID int64, newSalt uint64)        {}
func (noopHandler) OnBadMsgNotification(badMsgID int64, code int32)      {}
func (noopHandler) OnNewSessionCreated(firstMsgID, uniqueID int64, salt uint64) {}
func (noopHandler) OnRPCResult(reqMsgID int64, payload []byte)            {}
func (noopHandler) OnPong(pingID int64)                                   {}
func (noopHandler) OnUpdates(payload []byte)                              {}
func (noopHandler) OnUnknown(constructorID uint32, payload []byte)        {}

func TestEnsureSenderReusesExistingConnection(t *testing.T) {
	store := newFakeKeyStore()
	_ = store.SaveAuthKey(1, make([]byte, 256), 42)

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	go drainConn(server)

	connector := transport.ConnectorFunc(func(ctx context.Context, address string) (net.Conn, error) {
		return client, nil
	})

	mgr := New(1, Options{
		Directory: MapDCDirectory{1: {"ignored:443"}},
		Connector: connector,
		Mode:      transport.ModeAbridged,
		Store:     store,
		HandlerFactory: func(dcID int) mtproto.Handler {
			return noopHandler{}
		},
		Logger: mtclog.Noop(),
	})

	sender1, err := mgr.EnsureSender(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, sender1)

	sender2, err := mgr.EnsureSender(context.Background(), 1)
	require.NoError(t, err)
	require.Same(t, sender1, sender2)

	mgr.DisconnectAll()
}

func drainConn(c net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := c.Read(buf); err != nil {
			return
		}
	}
}
