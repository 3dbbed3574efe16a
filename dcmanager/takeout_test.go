package dcmanager

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/transport"
)

func TestTakeoutLifecycle(t *testing.T) {
	mgr := New(1, Options{})

	_, ok := mgr.ActiveTakeout(5)
	require.False(t, ok)

	mgr.BeginTakeout(5, 123456)

	id, ok := mgr.ActiveTakeout(5)
	require.True(t, ok)
	require.Equal(t, int64(123456), id)

	mgr.EndTakeout(5)

	_, ok = mgr.ActiveTakeout(5)
	require.False(t, ok)
}

func TestEnsureSenderCollapsesConcurrentDials(t *testing.T) {
	store := newFakeKeyStore()
	_ = store.SaveAuthKey(1, make([]byte, 256), 42)

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	go drainConn(server)

	var dials int32
	var mu sync.Mutex

	connector := transport.ConnectorFunc(func(ctx context.Context, address string) (net.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()

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
	t.Cleanup(mgr.DisconnectAll)

	const n = 10

	var wg sync.WaitGroup
	senders := make([]*mtproto.Sender, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			sender, err := mgr.EnsureSender(context.Background(), 1)
			require.NoError(t, err)
			senders[idx] = sender
		}(i)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), dials)

	for i := 1; i < n; i++ {
		require.Same(t, senders[0], senders[i])
	}
}

func TestConnectEmitsReconnectedEvent(t *testing.T) {
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

	observer := &dcEventObserver{done: make(chan struct{})}
	stream := events.NewEventStream([]events.ObserverFactory{func() events.Observer { return observer }})
	defer stream.Shutdown()

	mgr := New(1, Options{
		Directory: MapDCDirectory{1: {"ignored:443"}},
		Connector: connector,
		Mode:      transport.ModeAbridged,
		Store:     store,
		HandlerFactory: func(dcID int) mtproto.Handler {
			return noopHandler{}
		},
		Logger: mtclog.Noop(),
		Events: stream,
	})
	t.Cleanup(mgr.DisconnectAll)

	_, err := mgr.EnsureSender(context.Background(), 1)
	require.NoError(t, err)

	select {
	case <-observer.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dcmanager reconnected event")
	}

	require.True(t, observer.gotReconnected())
}

type dcEventObserver struct {
	events.NoopObserver

	mu          sync.Mutex
	reconnected bool
	done        chan struct{}
	doneOnce    sync.Once
}

func (o *dcEventObserver) OnReconnected(events.EventReconnected) {
	o.mu.Lock()
	o.reconnected = true
	o.mu.Unlock()
	o.doneOnce.Do(func() { close(o.done) })
}

func (o *dcEventObserver) gotReconnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconnected
}
