package mtproto

import (
	"sync"
	"time"

	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtwire"
)

const (
	ackFlushInterval = 75 * time.Second
	ackBatchLimit    = 8192
)

// AckCoalescer batches incoming content message ids into a single
// msgs_ack, flushed either when the batch grows large or on a ≈75s timer
// (§4.4 "Acknowledgements"), mirroring the ticker+stopCh background-loop
// shape used throughout the teacher repository's own periodic tasks
// (e.g. mtglib/rate_limiter.go's cleanupLoop).
type AckCoalescer struct {
	mu      sync.Mutex
	pending []int64

	sender *Sender
	logger mtclog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAckCoalescer creates a coalescer bound to sender.
func NewAckCoalescer(sender *Sender, logger mtclog.Logger) *AckCoalescer {
	return &AckCoalescer{
		sender: sender,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Add records msgID as needing acknowledgement.
func (a *AckCoalescer) Add(msgID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, msgID)

	if len(a.pending) >= ackBatchLimit {
		ids := a.takeLocked()
		go a.flush(ids)
	}
}

func (a *AckCoalescer) takeLocked() []int64 {
	ids := a.pending
	a.pending = nil

	return ids
}

// Start begins the ≈75s flush timer.
func (a *AckCoalescer) Start() {
	a.wg.Add(1)

	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(ackFlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-a.stopCh:
				a.flushNow()
				return
			case <-ticker.C:
				a.flushNow()
			}
		}
	}()
}

// Stop halts the flush timer after a final flush of any pending acks.
func (a *AckCoalescer) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *AckCoalescer) flushNow() {
	a.mu.Lock()
	ids := a.takeLocked()
	a.mu.Unlock()

	a.flush(ids)
}

func (a *AckCoalescer) flush(ids []int64) {
	if len(ids) == 0 {
		return
	}

	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorMsgsAck)
	buf.PutVectorHeader(len(ids))

	for _, id := range ids {
		buf.PutInt64(id)
	}

	if err := a.sender.SendNonContent(buf.Bytes()); err != nil {
		a.logger.WarningError("cannot flush msgs_ack", err)
	}
}
