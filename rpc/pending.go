// Package rpc implements §4.6's RPC submission, container batching, and
// retry/error policy on top of one mtproto.Sender per DC. It has no single
// teacher equivalent -- the proxy this module was adapted from never
// originates RPCs of its own -- but borrows shapes throughout: the
// priority/batching idiom of mtglib/internal/relay/priority.go, the
// 2-state cooldown circuit breaker of network/circuit_breaker.go, and the
// per-key golang.org/x/time/rate limiter of mtglib/rate_limiter.go.
package rpc

import (
	"context"
	"sync"
)

// PendingRequest tracks one in-flight RPC (§3): the body last sent, the
// msg_id it was most recently sent under (resent requests get a fresh
// msg_id but keep their identity here), and the channel its result is
// delivered on.
type PendingRequest struct {
	ID       uint64
	Body     []byte
	MsgID    int64
	Cancelled bool

	result chan Result
	ctx    context.Context
}

// Result is what a PendingRequest resolves to: either a decoded success
// payload or a typed RPC error (§7).
type Result struct {
	Payload []byte
	Err     error
}

// Table is the sender-owned map from msg_id (and from the caller-stable
// PendingRequest.ID) to PendingRequest, guarded by a mutex per §5's "local
// lock when multi-threaded" allowance.
type Table struct {
	mu       sync.Mutex
	byMsgID  map[int64]*PendingRequest
	byID     map[uint64]*PendingRequest
	nextID   uint64
}

// NewTable creates an empty pending-request table.
func NewTable() *Table {
	return &Table{
		byMsgID: make(map[int64]*PendingRequest),
		byID:    make(map[uint64]*PendingRequest),
	}
}

// Insert registers a freshly sent request under msgID, returning the
// PendingRequest the caller awaits on.
func (t *Table) Insert(ctx context.Context, body []byte, msgID int64) *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++

	req := &PendingRequest{
		ID:     t.nextID,
		Body:   body,
		MsgID:  msgID,
		result: make(chan Result, 1),
		ctx:    ctx,
	}

	t.byMsgID[msgID] = req
	t.byID[req.ID] = req

	return req
}

// Rebind moves req to a new msg_id, used when resending after a transport
// reconnect or a bad_server_salt/bad_msg_notification (§4.6 retry table):
// the caller identity (PendingRequest.ID) is stable, but the server only
// ever knows about the latest msg_id.
func (t *Table) Rebind(req *PendingRequest, newMsgID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.byMsgID, req.MsgID)
	req.MsgID = newMsgID
	t.byMsgID[newMsgID] = req
}

// Lookup finds the request a given msg_id refers to, used by rpc_result
// dispatch.
func (t *Table) Lookup(msgID int64) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.byMsgID[msgID]

	return req, ok
}

// Resolve delivers result to req and removes it from the table. The send
// never blocks: the result channel holds one value, so resolving a request
// nobody awaits any more leaks nothing.
func (t *Table) Resolve(req *PendingRequest, result Result) {
	t.mu.Lock()
	delete(t.byMsgID, req.MsgID)
	delete(t.byID, req.ID)
	t.mu.Unlock()

	select {
	case req.result <- result:
	default:
	}
}

// Cancel flags req as cancelled (§5 "Cancelling a request in flight"). The
// request remains in the table -- if already sent, the library still
// awaits a response but discards it once delivered.
func (t *Table) Cancel(id uint64) {
	t.mu.Lock()
	req, ok := t.byID[id]
	t.mu.Unlock()

	if ok {
		req.Cancelled = true
	}
}

// All returns every currently pending request, for resend-on-reconnect.
func (t *Table) All() []*PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*PendingRequest, 0, len(t.byMsgID))
	for _, req := range t.byMsgID {
		out = append(out, req)
	}

	return out
}

// Await blocks until req resolves or its context is cancelled.
func (req *PendingRequest) Await() Result {
	select {
	case r := <-req.result:
		return r
	case <-req.ctx.Done():
		return Result{Err: req.ctx.Err()}
	}
}
