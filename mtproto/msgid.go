package mtproto

import (
	"sync"
	"time"
)

// MsgIDGenerator produces strictly increasing MTProto message ids from wall
// clock time, tracking a signed offset (§4.4 "Time offset") that is nudged
// whenever a bad_msg_notification reports clock skew against the server.
//
// msg_id must satisfy two invariants the generator enforces directly: the
// low two bits encode the kind of message (0b01 content from Next, 0b00
// no-ack from NextNonContent, 0b11 container from NextContainer), and successive
// ids from the same generator strictly increase even if wall-clock time
// does not advance between calls.
type MsgIDGenerator struct {
	mu     sync.Mutex
	offset time.Duration
	last   int64
}

// NewMsgIDGenerator creates a generator with zero time offset.
func NewMsgIDGenerator() *MsgIDGenerator {
	return &MsgIDGenerator{}
}

// Next returns the next content-message msg_id (low two bits 0b01),
// guaranteed strictly greater than any id previously returned by this
// generator.
func (g *MsgIDGenerator) Next() int64 {
	return g.next(1)
}

// NextNonContent returns the next msg_id for a message that expects no ack
// (low two bits 0b00), e.g. msgs_ack itself.
func (g *MsgIDGenerator) NextNonContent() int64 {
	return g.next(0)
}

// NextContainer returns the next msg_id for an outer msg_container frame
// (low two bits 0b11), per the MTProto container-id convention.
func (g *MsgIDGenerator) NextContainer() int64 {
	return g.next(3)
}

func (g *MsgIDGenerator) next(low2 int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Add(g.offset)
	base := (now.Unix()<<32 | int64(now.Nanosecond())/1000<<2) &^ 3
	id := base | low2

	if id <= g.last {
		id = ((g.last &^ 3) + 4) | low2
	}

	g.last = id

	return id
}

// AdjustOffset nudges the time offset by delta (§4.4 "Time offset"),
// typically applied when a bad_msg_notification reports the local clock is
// skewed relative to the server's.
func (g *MsgIDGenerator) AdjustOffset(delta time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.offset += delta
}

// SetServerTime rebases the offset so that subsequent ids are generated as
// if the wall clock read serverTime right now, used to recover from
// msg_id_too_low/msg_id_too_high (§4.4).
func (g *MsgIDGenerator) SetServerTime(serverTime time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.offset = time.Until(serverTime)
}

// Offset returns the current signed offset, mostly for diagnostics/tests.
func (g *MsgIDGenerator) Offset() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.offset
}

// IsContentMessageID reports whether id's low two bits mark it as a
// content message (expects an ack/response), per the MTProto msg_id
// encoding.
func IsContentMessageID(id int64) bool {
	return id&3 == 1 || id&3 == 3
}
