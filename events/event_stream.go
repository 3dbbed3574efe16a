package events

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
)

// Observer reacts to events delivered by an EventStream. All methods must
// be safe to call from the stream's delivery goroutine; an Observer must
// not block indefinitely, since it shares its lane with every other event
// bound for the same stream id.
type Observer interface {
	OnAuthKeyCreated(EventAuthKeyCreated)
	OnMigrated(EventMigrated)
	OnFloodWait(EventFloodWait)
	OnGapDetected(EventGapDetected)
	OnGapResolved(EventGapResolved)
	OnGapForceResync(EventGapForceResync)
	OnRPCError(EventRPCError)
	OnReconnected(EventReconnected)
	Shutdown()
}

// ObserverFactory builds one Observer per delivery lane. EventStream calls
// it once per internal goroutine, so per-lane state (e.g. a metrics
// client that batches writes) does not need its own locking.
type ObserverFactory func() Observer

// NoopObserver discards every event. Embed it to implement Observer while
// overriding only the methods a caller cares about.
type NoopObserver struct{}

func (NoopObserver) OnAuthKeyCreated(EventAuthKeyCreated) {}
func (NoopObserver) OnMigrated(EventMigrated)             {}
func (NoopObserver) OnFloodWait(EventFloodWait)           {}
func (NoopObserver) OnGapDetected(EventGapDetected)       {}
func (NoopObserver) OnGapResolved(EventGapResolved)       {}
func (NoopObserver) OnGapForceResync(EventGapForceResync) {}
func (NoopObserver) OnRPCError(EventRPCError)             {}
func (NoopObserver) OnReconnected(EventReconnected)       {}
func (NoopObserver) Shutdown()                            {}


// NewNoopObserver is the default ObserverFactory used when a caller
// supplies none.
func NewNoopObserver() Observer {
	return NoopObserver{}
}

type multiObserver struct {
	observers []Observer
}

func newMultiObserver(factories []ObserverFactory) Observer {
	observers := make([]Observer, len(factories))
	for i, f := range factories {
		observers[i] = f()
	}

	return multiObserver{observers: observers}
}

func (m multiObserver) OnAuthKeyCreated(e EventAuthKeyCreated) {
	for _, o := range m.observers {
		o.OnAuthKeyCreated(e)
	}
}

func (m multiObserver) OnMigrated(e EventMigrated) {
	for _, o := range m.observers {
		o.OnMigrated(e)
	}
}

func (m multiObserver) OnFloodWait(e EventFloodWait) {
	for _, o := range m.observers {
		o.OnFloodWait(e)
	}
}

func (m multiObserver) OnGapDetected(e EventGapDetected) {
	for _, o := range m.observers {
		o.OnGapDetected(e)
	}
}

func (m multiObserver) OnGapResolved(e EventGapResolved) {
	for _, o := range m.observers {
		o.OnGapResolved(e)
	}
}

func (m multiObserver) OnGapForceResync(e EventGapForceResync) {
	for _, o := range m.observers {
		o.OnGapForceResync(e)
	}
}

func (m multiObserver) OnRPCError(e EventRPCError) {
	for _, o := range m.observers {
		o.OnRPCError(e)
	}
}

func (m multiObserver) OnReconnected(e EventReconnected) {
	for _, o := range m.observers {
		o.OnReconnected(e)
	}
}

func (m multiObserver) Shutdown() {
	for _, o := range m.observers {
		o.Shutdown()
	}
}

// EventStream is the default pub/sub every component in this module sends
// lifecycle events through. It hash-shards streams (by StreamID, e.g. "dc:2"
// or "channel:1234") across a fixed pool of goroutines so that events
// belonging to the same stream are delivered to the same observer in
// order, while unrelated streams are processed concurrently. Grounded on
// the teacher's mtglib EventStream (same hash-then-channel-per-shard
// shape), generalized from proxy connection events to sender/update
// lifecycle events.
type EventStream struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	chans     []chan Event
	dropped   *atomic.Uint64
}

// NewEventStream builds an EventStream. If observerFactories is empty, a
// NoopObserver is used. Multiple factories fan each event out to all of
// them via a multiObserver.
func NewEventStream(observerFactories []ObserverFactory) EventStream {
	if len(observerFactories) == 0 {
		observerFactories = append(observerFactories, NewNoopObserver)
	}

	ctx, cancel := context.WithCancel(context.Background())

	lanes := runtime.NumCPU()
	if lanes < 1 {
		lanes = 1
	}

	rv := EventStream{
		ctx:       ctx,
		ctxCancel: cancel,
		chans:     make([]chan Event, lanes),
		dropped:   &atomic.Uint64{},
	}

	for i := 0; i < lanes; i++ {
		rv.chans[i] = make(chan Event, 64)

		var observer Observer
		if len(observerFactories) == 1 {
			observer = observerFactories[0]()
		} else {
			observer = newMultiObserver(observerFactories)
		}

		go eventStreamProcessor(ctx, rv.chans[i], observer)
	}

	return rv
}

// Send routes evt to the lane its StreamID hashes to. Delivery is
// best-effort: if the lane's buffer is full the event is dropped rather
// than blocking the caller, since callers are typically holding a sender
// or dispatcher lock.
func (e EventStream) Send(ctx context.Context, evt Event) {
	if len(e.chans) == 0 {
		// Zero-value EventStream: callers that never ran NewEventStream
		// (e.g. package tests constructing a component directly) get a
		// silent no-op rather than a divide-by-zero panic below.
		return
	}

	var laneNo uint32

	if streamID := evt.StreamID(); streamID != "" {
		laneNo = xxhash.ChecksumString32(streamID)
	} else {
		laneNo = rand.Uint32()
	}

	ch := e.chans[int(laneNo)%len(e.chans)]

	select {
	case <-ctx.Done():
	case <-e.ctx.Done():
	case ch <- evt:
	default:
		e.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped due to a full lane buffer
// since the stream started.
func (e EventStream) Dropped() uint64 {
	return e.dropped.Load()
}

// Shutdown stops every delivery goroutine.
func (e EventStream) Shutdown() {
	e.ctxCancel()
}

func eventStreamProcessor(ctx context.Context, eventChan <-chan Event, observer Observer) {
	defer observer.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-eventChan:
			switch typed := evt.(type) {
			case EventAuthKeyCreated:
				observer.OnAuthKeyCreated(typed)
			case EventMigrated:
				observer.OnMigrated(typed)
			case EventFloodWait:
				observer.OnFloodWait(typed)
			case EventGapDetected:
				observer.OnGapDetected(typed)
			case EventGapResolved:
				observer.OnGapResolved(typed)
			case EventGapForceResync:
				observer.OnGapForceResync(typed)
			case EventRPCError:
				observer.OnRPCError(typed)
			case EventReconnected:
				observer.OnReconnected(typed)
			}
		}
	}
}
