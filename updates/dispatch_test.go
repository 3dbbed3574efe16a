package updates

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/mtclog"
)

func TestDispatchDeliversSameKeyInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int32
	)

	d, err := NewDispatch(4, func(_ ChannelKey, u Update) {
		time.Sleep(time.Millisecond)

		mu.Lock()
		seen = append(seen, u.Pts)
		mu.Unlock()
	}, mtclog.Noop())
	require.NoError(t, err)

	defer d.Stop()

	key := ChannelKey{AccountID: 1}
	for i := int32(1); i <= 20; i++ {
		d.Submit(key, Update{Pts: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) == 20
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	for i, pts := range seen {
		require.EqualValues(t, i+1, pts)
	}
}

func TestDispatchRunsDifferentKeysConcurrently(t *testing.T) {
	const keys = 5

	var wg sync.WaitGroup
	wg.Add(keys)

	d, err := NewDispatch(keys, func(_ ChannelKey, _ Update) {
		defer wg.Done()

		time.Sleep(50 * time.Millisecond)
	}, mtclog.Noop())
	require.NoError(t, err)

	defer d.Stop()

	start := time.Now()

	for i := int64(0); i < keys; i++ {
		d.Submit(ChannelKey{AccountID: i}, Update{Pts: 1})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for concurrent delivery")
	}

	// If keys were serialized, this would take keys*50ms; concurrent
	// delivery should comfortably finish in a couple of the per-job sleeps.
	require.Less(t, time.Since(start), 40*time.Duration(keys)*time.Millisecond)
}
