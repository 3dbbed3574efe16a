package updates

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
)

// ChannelKey identifies one pts-ordered update stream: the user's common
// box (ChannelID 0) or a specific channel/supergroup's own box (§4.6,
// channels keep an independent pts).
type ChannelKey struct {
	AccountID int64
	ChannelID int64
}

// State is the pts/qts/date/seq bookkeeping tracked per box (§4.6,
// §4.7's per-channel persisted state).
type State struct {
	Pts  int32
	Qts  int32
	Date int32
	Seq  int32
}

// Update is one pending update: the raw schema-owned payload plus the
// pts bookkeeping fields the pipeline needs to sequence it (§6: this core
// does not decode the payload itself).
type Update struct {
	Payload  []byte
	Pts      int32
	PtsCount int32
}

// GetDifference fetches the authoritative updates.getDifference or
// updates.getChannelDifference result for key starting from state. It is
// caller-supplied because the RPC body and its result both come from the
// generated schema catalogue (§6); the pipeline only needs the resulting
// state and the updates it carried.
type GetDifference func(ctx context.Context, key ChannelKey, state State) (State, []Update, error)

// Pipeline implements §4.6's update sequencing: apply an update directly
// when its pts contiguously extends the known state, discard one that is
// already covered, and buffer-then-getDifference one that opens a gap.
type Pipeline struct {
	getDiff  GetDifference
	dedup    *Dedup
	dispatch *Dispatch
	logger   mtclog.Logger
	events   events.EventStream

	mu      sync.Mutex
	states  map[ChannelKey]State
	buffers map[ChannelKey]*gapBuffer
}

// NewPipeline creates a Pipeline. getDiff may be nil if the caller never
// expects a gap (e.g. tests feeding a dense update stream); a real gap
// with getDiff == nil is logged and the buffered updates are dropped.
func NewPipeline(getDiff GetDifference, dedup *Dedup, dispatch *Dispatch, logger mtclog.Logger) *Pipeline {
	return &Pipeline{
		getDiff:  getDiff,
		dedup:    dedup,
		dispatch: dispatch,
		logger:   logger,
		states:   make(map[ChannelKey]State),
		buffers:  make(map[ChannelKey]*gapBuffer),
	}
}

// SetEvents binds the event stream gap lifecycle moments are reported on.
// The zero value (never calling SetEvents) is a safe no-op.
func (p *Pipeline) SetEvents(stream events.EventStream) {
	p.events = stream
}

// SeedState installs the known state for key, e.g. loaded from the
// session store at startup (§4.7).
func (p *Pipeline) SeedState(key ChannelKey, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states[key] = state
}

// State returns the currently known state for key.
func (p *Pipeline) State(key ChannelKey) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[key]

	return state, ok
}

// Apply feeds one incoming update through the gap-detection formula
// (§4.6): old_pts+pts_count==new_pts applies it directly; new_pts<=old_pts
// discards it as already seen; anything else opens (or extends) a gap.
func (p *Pipeline) Apply(ctx context.Context, key ChannelKey, u Update) {
	if p.dedup != nil && p.dedup.SeenBefore(dedupDigest(key, u)) {
		return
	}

	p.mu.Lock()
	state, known := p.states[key]
	p.mu.Unlock()

	switch {
	case !known:
		// No baseline yet: treat the first update as establishing the
		// baseline rather than opening a gap against pts 0.
		p.commit(key, State{Pts: u.Pts}, []Update{u})

	case state.Pts+u.PtsCount == u.Pts:
		p.commit(key, State{Pts: u.Pts}, []Update{u})
		p.drainBufferIfContiguous(ctx, key)

	case u.Pts <= state.Pts:
		// Already applied; discard.

	default:
		p.openOrExtendGap(ctx, key, u)
	}
}

func (p *Pipeline) commit(key ChannelKey, state State, updates []Update) {
	p.mu.Lock()
	p.states[key] = state
	p.mu.Unlock()

	for _, u := range updates {
		p.dispatch.Submit(key, u)
	}
}

func (p *Pipeline) bufferFor(key ChannelKey) *gapBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buffers[key]
	if !ok {
		b = newGapBuffer()
		p.buffers[key] = b
	}

	return b
}

func (p *Pipeline) openOrExtendGap(ctx context.Context, key ChannelKey, u Update) {
	p.mu.Lock()
	_, alreadyOpen := p.buffers[key]
	p.mu.Unlock()

	if !alreadyOpen {
		p.mu.Lock()
		state := p.states[key]
		p.mu.Unlock()

		p.events.Send(ctx, events.NewEventGapDetected(key.ChannelID, state.Pts, u.Pts))
	}

	buf := p.bufferFor(key)
	buf.add(u)
	buf.armForceFetch(func() {
		p.resolveGap(ctx, key)
	})
}

// drainBufferIfContiguous checks whether buffered updates now pick up
// exactly where the freshly committed state left off, applying as many as
// chain contiguously.
func (p *Pipeline) drainBufferIfContiguous(ctx context.Context, key ChannelKey) {
	p.mu.Lock()
	buf, ok := p.buffers[key]
	p.mu.Unlock()

	if !ok {
		return
	}

	pending := buf.takeAndReset()
	if len(pending) > 0 {
		p.events.Send(ctx, events.NewEventGapResolved(key.ChannelID, false))
	}

	for _, u := range pending {
		p.Apply(ctx, key, u)
	}
}

// maxGapAttempts bounds how many consecutive getDifference failures a gap
// tolerates before falling back to a full state resync (§4.6 point 4:
// "gaps unresolved after several attempts cause a full state resync").
const maxGapAttempts = 3

// resolveGap forces a getDifference call once a gap has stayed open past
// gapForceFetchTimeout, applying the result and anything still buffered.
// After maxGapAttempts consecutive failures it gives up on the stale
// baseline and resyncs from the server's current state instead.
func (p *Pipeline) resolveGap(ctx context.Context, key ChannelKey) {
	p.mu.Lock()
	buf := p.buffers[key]
	state := p.states[key]
	p.mu.Unlock()

	if buf == nil {
		return
	}

	if p.getDiff == nil {
		p.logger.Warning(fmt.Sprintf("updates: gap open on %+v with no getDifference wired, dropping buffered updates", key))
		buf.takeAndReset()

		return
	}

	newState, fetched, err := p.getDiff(ctx, key, state)
	if err != nil {
		attempts := buf.recordFailedAttempt()
		p.logger.WarningError(fmt.Sprintf("updates: getDifference failed for %+v (attempt %d)", key, attempts), err)

		if attempts >= maxGapAttempts {
			p.forceFullResync(ctx, key, buf)

			return
		}

		// Keep what's buffered and retry; the timer already cleared
		// itself when it fired, so this re-arms a fresh attempt.
		buf.armForceFetch(func() {
			p.resolveGap(ctx, key)
		})

		return
	}

	p.commit(key, newState, fetched)
	p.events.Send(ctx, events.NewEventGapResolved(key.ChannelID, true))

	pending := buf.takeAndReset()
	for _, u := range pending {
		p.Apply(ctx, key, u)
	}
}

// forceFullResync drops the stale baseline entirely and fetches from the
// server's current state (a zero State rather than the last known one),
// used once resolveGap has exhausted maxGapAttempts against the old
// baseline. A failure here simply re-arms the ordinary retry path, which
// escalates straight back here since the failure count never dropped.
func (p *Pipeline) forceFullResync(ctx context.Context, key ChannelKey, buf *gapBuffer) {
	newState, fetched, err := p.getDiff(ctx, key, State{})
	if err != nil {
		p.logger.WarningError(fmt.Sprintf("updates: full resync getDifference failed for %+v", key), err)
		buf.armForceFetch(func() {
			p.resolveGap(ctx, key)
		})

		return
	}

	p.commit(key, newState, fetched)
	p.events.Send(ctx, events.NewEventGapForceResync(key.ChannelID, maxGapAttempts))

	pending := buf.takeAndReset()
	for _, u := range pending {
		p.Apply(ctx, key, u)
	}
}

func dedupDigest(key ChannelKey, u Update) []byte {
	digest := make([]byte, 20)
	binary.BigEndian.PutUint64(digest[0:8], uint64(key.AccountID))
	binary.BigEndian.PutUint64(digest[8:16], uint64(key.ChannelID))
	binary.BigEndian.PutUint32(digest[16:20], uint32(u.Pts))

	return digest
}
