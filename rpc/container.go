package rpc

import (
	"sync"
	"time"

	"github.com/mtprotogo/core/mtwire"
)

const (
	containerMaxMessages = 100
	containerMaxBytes    = 1 << 15
	containerCtor        = 0x73f1f8dc
	coalesceWindow       = 2 * time.Millisecond
)

// OutboxEntry is one inner message queued for the next container flush,
// already assigned its own msg_id and seq_no by the caller.
type OutboxEntry struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

// Container coalesces ready-to-send request bodies into a single
// msg_container per §4.6 "RPC submission": bounded to ≤100 inner messages
// and ≤2^15 bytes, sent as one encrypted message. Grounded on the small
// bounded-batching shape of mtglib/internal/relay/priority.go, generalized
// from "classify a relay direction" to "batch a burst of outgoing RPCs".
type Container struct {
	mu      sync.Mutex
	entries []OutboxEntry
	size    int

	flush func([]OutboxEntry) error

	timer   *time.Timer
	pending bool
}

// NewContainer creates a Container that calls flush with the batched
// entries whenever a batching window closes. flush decides how to encode
// and send them: a single entry needs no wrapping, several are sent as one
// msg_container under a fresh outer msg_id (see EncodeContainer).
func NewContainer(flush func([]OutboxEntry) error) *Container {
	return &Container{flush: flush}
}

// Add queues one inner message. If this is the first message in a new
// batching window, a short timer is armed so concurrent Add calls from
// other goroutines within coalesceWindow are folded into the same
// container. Reaching either bound forces an immediate flush, and a body
// that would take the batch past the byte bound first flushes the entries
// already queued.
func (c *Container) Add(msgID int64, seqNo int32, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 && c.size+len(body) > containerMaxBytes {
		c.flushLocked()
	}

	c.entries = append(c.entries, OutboxEntry{MsgID: msgID, SeqNo: seqNo, Body: body})
	c.size += len(body)

	if len(c.entries) >= containerMaxMessages || c.size >= containerMaxBytes {
		c.flushLocked()
		return
	}

	if !c.pending {
		c.pending = true
		c.timer = time.AfterFunc(coalesceWindow, c.flushTimer)
	}
}

func (c *Container) flushTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushLocked()
}

func (c *Container) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.pending = false

	if len(c.entries) == 0 {
		return
	}

	entries := c.entries
	c.entries = nil
	c.size = 0

	if c.flush != nil {
		_ = c.flush(entries)
	}
}

// EncodeContainer builds the msg_container wire form for two or more
// entries. Callers should not wrap a single entry: send its body directly
// under its own msg_id/seq_no instead.
func EncodeContainer(entries []OutboxEntry) []byte {
	buf := mtwire.NewBuffer()
	buf.PutUint32(containerCtor)
	buf.PutInt32(int32(len(entries)))

	for _, e := range entries {
		buf.PutInt64(e.MsgID)
		buf.PutInt32(e.SeqNo)
		buf.PutInt32(int32(len(e.Body)))
		buf.PutRaw(e.Body)
	}

	return buf.Bytes()
}
