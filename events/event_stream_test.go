package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	NoopObserver

	mu          sync.Mutex
	keyed       []EventAuthKeyCreated
	gaps        []EventGapDetected
	resync      []EventGapResolved
	forceResync []EventGapForceResync
}

func (r *recordingObserver) OnAuthKeyCreated(e EventAuthKeyCreated) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyed = append(r.keyed, e)
}

func (r *recordingObserver) OnGapDetected(e EventGapDetected) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaps = append(r.gaps, e)
}

func (r *recordingObserver) OnGapResolved(e EventGapResolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resync = append(r.resync, e)
}

func (r *recordingObserver) OnGapForceResync(e EventGapForceResync) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceResync = append(r.forceResync, e)
}

func (r *recordingObserver) snapshot() (
	keyed []EventAuthKeyCreated, gaps []EventGapDetected, resync []EventGapResolved, forceResync []EventGapForceResync,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]EventAuthKeyCreated(nil), r.keyed...),
		append([]EventGapDetected(nil), r.gaps...),
		append([]EventGapResolved(nil), r.resync...),
		append([]EventGapForceResync(nil), r.forceResync...)
}

func TestEventStreamDeliversToObserver(t *testing.T) {
	observer := &recordingObserver{}

	stream := NewEventStream([]ObserverFactory{func() Observer { return observer }})
	defer stream.Shutdown()

	stream.Send(context.Background(), NewEventAuthKeyCreated(2, 0xabc))
	stream.Send(context.Background(), NewEventGapDetected(100, 5, 9))
	stream.Send(context.Background(), NewEventGapResolved(100, true))
	stream.Send(context.Background(), NewEventGapForceResync(100, 3))

	require.Eventually(t, func() bool {
		keyed, gaps, resync, forceResync := observer.snapshot()
		return len(keyed) == 1 && len(gaps) == 1 && len(resync) == 1 && len(forceResync) == 1
	}, time.Second, 5*time.Millisecond)

	keyed, gaps, resync, forceResync := observer.snapshot()
	require.Equal(t, 2, keyed[0].DC)
	require.Equal(t, uint64(0xabc), keyed[0].Fingerprint)
	require.Equal(t, int32(5), gaps[0].OldPts)
	require.Equal(t, int32(9), gaps[0].NewPts)
	require.True(t, resync[0].Forced)
	require.Equal(t, 3, forceResync[0].Attempts)
}

func TestEventStreamSameStreamIDOrderedOnOneLane(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	observer := &orderObserver{onMigrated: func(e EventMigrated) {
		mu.Lock()
		seen = append(seen, e.ToDC)
		mu.Unlock()
	}}

	stream := NewEventStream([]ObserverFactory{func() Observer { return observer }})
	defer stream.Shutdown()

	for i := 1; i <= 20; i++ {
		stream.Send(context.Background(), NewEventMigrated(2, i, "test"))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	for i, v := range seen {
		require.Equal(t, i+1, v)
	}
}

type orderObserver struct {
	NoopObserver
	onMigrated func(EventMigrated)
}

func (o *orderObserver) OnMigrated(e EventMigrated) {
	o.onMigrated(e)
}

func TestEventStreamZeroValueSendIsNoop(t *testing.T) {
	var stream EventStream

	require.NotPanics(t, func() {
		stream.Send(context.Background(), NewEventAuthKeyCreated(1, 1))
	})
}

func TestEventStreamDropsWhenLaneFull(t *testing.T) {
	blocked := make(chan struct{})

	observer := &blockingObserver{ready: blocked}
	stream := NewEventStream([]ObserverFactory{func() Observer { return observer }})
	defer stream.Shutdown()

	// Same StreamID forces every event onto the one lane the blocked
	// observer occupies.
	stream.Send(context.Background(), NewEventAuthKeyCreated(9, 1))

	for i := 0; i < 200; i++ {
		stream.Send(context.Background(), NewEventAuthKeyCreated(9, uint64(i)))
	}

	close(blocked)

	require.Eventually(t, func() bool {
		return stream.Dropped() > 0
	}, time.Second, 5*time.Millisecond)
}

type blockingObserver struct {
	NoopObserver
	ready chan struct{}
}

func (o *blockingObserver) OnAuthKeyCreated(EventAuthKeyCreated) {
	<-o.ready
}
