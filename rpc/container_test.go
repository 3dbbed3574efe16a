package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContainerFlushesSingleEntryUnwrapped(t *testing.T) {
	var (
		mu       sync.Mutex
		received []OutboxEntry
	)

	done := make(chan struct{}, 1)

	c := NewContainer(func(entries []OutboxEntry) error {
		mu.Lock()
		received = entries
		mu.Unlock()
		done <- struct{}{}

		return nil
	})

	c.Add(1, 1, []byte("body"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, []byte("body"), received[0].Body)
}

func TestContainerCoalescesConcurrentAdds(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]OutboxEntry
	)

	done := make(chan struct{}, 1)

	c := NewContainer(func(entries []OutboxEntry) error {
		mu.Lock()
		batches = append(batches, entries)
		mu.Unlock()

		if len(entries) >= 2 {
			done <- struct{}{}
		}

		return nil
	})

	c.Add(1, 1, []byte("a"))
	c.Add(2, 1, []byte("b"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush did not coalesce concurrent adds")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches[len(batches)-1], 2)
}

func TestContainerForceFlushesOnMessageCountBound(t *testing.T) {
	flushed := make(chan []OutboxEntry, 1)

	c := NewContainer(func(entries []OutboxEntry) error {
		flushed <- entries
		return nil
	})

	for i := 0; i < containerMaxMessages; i++ {
		c.Add(int64(i), 1, []byte("x"))
	}

	select {
	case entries := <-flushed:
		require.Len(t, entries, containerMaxMessages)
	case <-time.After(time.Second):
		t.Fatal("container did not force-flush at message bound")
	}
}

func TestEncodeContainerWrapsMultipleEntries(t *testing.T) {
	payload := EncodeContainer([]OutboxEntry{
		{MsgID: 1, SeqNo: 1, Body: []byte("a")},
		{MsgID: 2, SeqNo: 1, Body: []byte("bb")},
	})

	require.Greater(t, len(payload), len("a")+len("bb"))
}
