package updates

import (
	"sync"
	"time"
)

// gapForceFetchTimeout bounds how long a gap buffer waits for the missing
// updates to arrive on their own before forcing a getDifference call
// (§4.6 point 4, "buffer for ~500ms, then force a fetch").
const gapForceFetchTimeout = 500 * time.Millisecond

// gapBuffer holds updates received out of order for one channel while a
// pts gap is open, and arms a single forced-fetch timer for the gap.
type gapBuffer struct {
	mu       sync.Mutex
	pending  []Update
	timer    *time.Timer
	attempts int
}

func newGapBuffer() *gapBuffer {
	return &gapBuffer{}
}

// add appends u to the buffer in pts order, since a closing
// getDifference replay and further live pushes can interleave.
func (b *gapBuffer) add(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := len(b.pending)
	for i, existing := range b.pending {
		if u.Pts < existing.Pts {
			idx = i
			break
		}
	}

	b.pending = append(b.pending, Update{})
	copy(b.pending[idx+1:], b.pending[idx:])
	b.pending[idx] = u
}

// armForceFetch starts the forced-fetch timer if one is not already
// running for this gap. The timer clears itself before calling fn, so a
// failed fetch that leaves updates buffered can be re-armed by the next
// add.
func (b *gapBuffer) armForceFetch(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		return
	}

	b.timer = time.AfterFunc(gapForceFetchTimeout, func() {
		b.mu.Lock()
		b.timer = nil
		b.mu.Unlock()

		fn()
	})
}

// takeAndReset returns every buffered update and clears the buffer, timer,
// and failure counter, used once the gap has been closed (either by a
// matching live update arriving or by getDifference resolving it).
func (b *gapBuffer) takeAndReset() []Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	pending := b.pending
	b.pending = nil
	b.attempts = 0

	return pending
}

// recordFailedAttempt counts one more consecutive getDifference failure for
// this gap and returns the new total, used to decide when to escalate from
// a plain retry to a full state resync (§4.6 point 4).
func (b *gapBuffer) recordFailedAttempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	return b.attempts
}
