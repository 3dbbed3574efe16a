package rpc

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mtprotogo/core/dcmanager"
	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/mtwire"
)

const ctorGzipPacked = 0x3072cfa1

// UpdatesHandler receives the raw body of any updates-shaped message a DC's
// Sender reports, tagged with the DC it arrived on. The updates package
// wires its pipeline in here; rpc itself does not interpret update bodies.
type UpdatesHandler func(dcID int, payload []byte)

// Dispatcher is the top-level RPC submission API (§4.6): it owns one
// PendingRequest Table and one Container per DC, applies the retry/error
// policy table to every result, and bridges dcmanager's per-DC Sender
// system messages back into that state. It has no single teacher
// equivalent; its shape is the union of mtglib/proxy.go's per-connection
// state ownership and network/circuit_breaker.go's per-target cooldown.
type Dispatcher struct {
	mgr       *dcmanager.Manager
	logger    mtclog.Logger
	limiter   *KindLimiter
	onUpdates UpdatesHandler
	layerCfg  LayerConfig
	firstUse  *wrapFirstUse
	events    events.EventStream

	mu       sync.Mutex
	tables   map[int]*Table
	boxes    map[int]*Container
	retriers map[int]*Retry500Series
}

// NewDispatcher creates a Dispatcher bound to mgr. mgr may be nil if the
// caller has not constructed it yet (dcmanager.Manager and Dispatcher refer
// to each other, see SetManager); onUpdates may be nil if the caller does
// not care about the updates stream. layerCfg is used to wrap the first
// request sent on each DC's connection per §4.6.
func NewDispatcher(mgr *dcmanager.Manager, logger mtclog.Logger, layerCfg LayerConfig, onUpdates UpdatesHandler) *Dispatcher {
	return &Dispatcher{
		mgr:       mgr,
		logger:    logger,
		limiter:   NewKindLimiter(rateUnlimited, burstUnlimited, 5*time.Minute),
		onUpdates: onUpdates,
		layerCfg:  layerCfg,
		firstUse:  newWrapFirstUse(),
		tables:    make(map[int]*Table),
		boxes:     make(map[int]*Container),
		retriers:  make(map[int]*Retry500Series),
	}
}

// rateUnlimited/burstUnlimited are generous defaults: the limiter exists to
// protect a misbehaving caller from hammering a single RPC kind, not to
// impose an application-level quota the caller hasn't asked for.
const (
	rateUnlimited  = 50
	burstUnlimited = 20
)

// SetEvents binds the event stream lifecycle moments are reported on. The
// zero value (never calling SetEvents) is a safe no-op.
func (d *Dispatcher) SetEvents(stream events.EventStream) {
	d.events = stream
}

// SetManager binds mgr after construction, for the case where the
// Dispatcher is built before its Manager exists (mtclient.New: each needs
// the other's constructor output).
func (d *Dispatcher) SetManager(mgr *dcmanager.Manager) {
	d.mgr = mgr
}

// HandlerFactory returns the dcmanager.HandlerFactory that bridges every
// DC's Sender into this Dispatcher, for use as dcmanager.Options.HandlerFactory.
func (d *Dispatcher) HandlerFactory() dcmanager.HandlerFactory {
	return func(dcID int) mtproto.Handler {
		return &dcHandler{d: d, dcID: dcID}
	}
}

// OnDisconnect returns the dcmanager.Options.OnDisconnect callback that
// requeues every request still pending on a DC whose transport just failed,
// per §4.6's "Transport error or disconnect: Reconnect; resend all
// non-terminal pending requests with fresh msg_ids."
func (d *Dispatcher) OnDisconnect() func(dcID int, err error) {
	return func(dcID int, err error) {
		d.logger.WarningError(fmt.Sprintf("rpc: dc %d disconnected, requeueing pending requests", dcID), err)
		d.resendAllPending(dcID)
	}
}

func (d *Dispatcher) resendAllPending(dcID int) {
	table := d.tableFor(dcID)

	pending := table.All()
	if len(pending) == 0 {
		return
	}

	sender, err := d.mgr.EnsureSender(context.Background(), dcID)
	if err != nil {
		d.logger.WarningError(fmt.Sprintf("rpc: cannot reconnect dc %d to requeue pending requests", dcID), err)
		return
	}

	container := d.containerFor(dcID)

	for _, req := range pending {
		if req.Cancelled {
			continue
		}

		newMsgID := sender.NextRequestMsgID()
		newSeqNo := sender.NextSeqNo(true)

		table.Rebind(req, newMsgID)
		container.Add(newMsgID, newSeqNo, req.Body)
	}
}

func (d *Dispatcher) tableFor(dcID int) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tables[dcID]
	if !ok {
		t = NewTable()
		d.tables[dcID] = t
	}

	return t
}

func (d *Dispatcher) retrierFor(dcID int) *Retry500Series {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.retriers[dcID]
	if !ok {
		r = NewRetry500Series()
		d.retriers[dcID] = r
	}

	return r
}

func (d *Dispatcher) containerFor(dcID int) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.boxes[dcID]
	if !ok {
		c = NewContainer(func(entries []OutboxEntry) error {
			return d.flushEntries(dcID, entries)
		})
		d.boxes[dcID] = c
	}

	return c
}

func (d *Dispatcher) flushEntries(dcID int, entries []OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	sender, err := d.mgr.EnsureSender(context.Background(), dcID)
	if err != nil {
		return fmt.Errorf("rpc: cannot flush to dc %d: %w", dcID, err)
	}

	if len(entries) == 1 {
		return sender.SendRaw(entries[0].MsgID, entries[0].SeqNo, entries[0].Body)
	}

	outerMsgID := sender.NextContainerMsgID()
	outerSeqNo := sender.NextSeqNo(true)
	payload := EncodeContainer(entries)

	return sender.SendRaw(outerMsgID, outerSeqNo, payload)
}

// Submit sends body as one RPC against dcID, applying the §4.6 retry/error
// policy until it resolves, is cancelled, or is deemed unrecoverable.
// kind identifies the RPC method for per-kind rate limiting (e.g.
// "messages.sendMessage").
func (d *Dispatcher) Submit(ctx context.Context, dcID int, kind string, body []byte) Result {
	currentDC := dcID

	bo := backoff.NewExponentialBackOff()

	var serverErrorAttempts uint64

	for {
		retrier := d.retrierFor(currentDC)
		if !retrier.breaker.allow(time.Now()) {
			return Result{Err: ErrCircuitOpen}
		}

		if err := d.limiter.Wait(ctx, kind); err != nil {
			return Result{Err: err}
		}

		sender, err := d.mgr.EnsureSender(ctx, currentDC)
		if err != nil {
			return Result{Err: fmt.Errorf("rpc: cannot reach dc %d: %w", currentDC, err)}
		}

		table := d.tableFor(currentDC)
		container := d.containerFor(currentDC)

		outBody := body
		if takeoutID, ok := d.mgr.ActiveTakeout(currentDC); ok {
			outBody = wrapTakeout(takeoutID, outBody)
		}

		if d.firstUse.needsWrap(sender) {
			outBody = wrapInitConnection(d.layerCfg, outBody)
		}

		msgID := sender.NextRequestMsgID()
		seqNo := sender.NextSeqNo(true)

		req := table.Insert(ctx, outBody, msgID)
		container.Add(msgID, seqNo, outBody)

		result := req.Await()

		if result.Err == nil {
			retrier.recordSuccess()
			return result
		}

		if IsAuthKeyUnregistered(result.Err) {
			return result
		}

		if wait, ok := IsFloodWait(result.Err); ok {
			d.events.Send(ctx, events.NewEventFloodWait(currentDC, int(wait.Seconds())))

			if !AwaitFloodWait(ctx, wait) {
				return result
			}

			continue
		}

		if newDC, ok := MigrateTarget(result.Err); ok {
			d.logger.Info(fmt.Sprintf("rpc: %d reported migration, retrying against dc %d", currentDC, newDC))
			d.events.Send(ctx, events.NewEventMigrated(currentDC, newDC, "rpc_error"))
			currentDC = newDC

			continue
		}

		var rpcErr *RPCError
		if errors.As(result.Err, &rpcErr) && rpcErr.Code >= 500 {
			retrier.recordFailure(time.Now())

			if serverErrorAttempts >= retrier.maxRetries {
				d.events.Send(ctx, events.NewEventRPCError(currentDC, int(rpcErr.Code), rpcErr.Name))
				return result
			}

			serverErrorAttempts++

			select {
			case <-time.After(bo.NextBackOff()):
				continue
			case <-ctx.Done():
				return Result{Err: ctx.Err()}
			}
		}

		if errors.As(result.Err, &rpcErr) {
			d.events.Send(ctx, events.NewEventRPCError(currentDC, int(rpcErr.Code), rpcErr.Name))
		}

		return result
	}
}

// Cancel marks the request with the given caller-stable id as cancelled
// (§5), discarding its result once delivered. Cancel does not itself wake
// a caller blocked waiting on the request.
func (d *Dispatcher) Cancel(dcID int, id uint64) {
	d.tableFor(dcID).Cancel(id)
}

// dcHandler bridges one DC's mtproto.Sender system messages into the
// owning Dispatcher.
type dcHandler struct {
	d      *Dispatcher
	dcID   int
	pinger *mtproto.Pinger
}

func (h *dcHandler) BindPinger(p *mtproto.Pinger) {
	h.pinger = p
}

func (h *dcHandler) OnPong(pingID int64) {
	if h.pinger != nil {
		h.pinger.OnPong(pingID)
	}
}

func (h *dcHandler) OnMsgsAck(msgIDs []int64) {}

func (h *dcHandler) OnNewSessionCreated(firstMsgID, uniqueID int64, salt uint64) {}

func (h *dcHandler) OnUnknown(constructorID uint32, payload []byte) {}

func (h *dcHandler) OnUpdates(payload []byte) {
	if h.d.onUpdates != nil {
		h.d.onUpdates(h.dcID, payload)
	}
}

// OnBadServerSalt resends the referenced request under a fresh msg_id once
// the Sender has already installed the new salt (§4.6 retry table:
// "bad_server_salt: replace salt, resend").
func (h *dcHandler) OnBadServerSalt(badMsgID int64, newSalt uint64) {
	h.d.resend(h.dcID, badMsgID)
}

// OnBadMsgNotification resends the referenced request for the id-skew
// error codes (16: msg_id too low, 17: msg_id too high) and the seq_no
// codes (32: seq_no too low, 33: seq_no too high); other codes are logged
// but not auto-resolved since resending would not help (§4.6).
func (h *dcHandler) OnBadMsgNotification(badMsgID int64, code int32) {
	switch code {
	case 16, 17, 32, 33:
		h.d.resend(h.dcID, badMsgID)
	default:
		h.d.logger.Warning(fmt.Sprintf("rpc: bad_msg_notification code %d for msg %d on dc %d, not auto-resending",
			code, badMsgID, h.dcID))
	}
}

// resend looks up the pending request a bad_server_salt/bad_msg_notification
// referred to, reassigns it a fresh msg_id on the current Sender, and
// re-enqueues it through the Container exactly as a first send would.
func (h *dcHandler) resend(dcID int, badMsgID int64) {
	table := h.d.tableFor(dcID)

	req, ok := table.Lookup(badMsgID)
	if !ok {
		return
	}

	sender, err := h.d.mgr.EnsureSender(context.Background(), dcID)
	if err != nil {
		h.d.logger.WarningError(fmt.Sprintf("rpc: cannot resend request on dc %d", dcID), err)
		return
	}

	newMsgID := sender.NextRequestMsgID()
	newSeqNo := sender.NextSeqNo(true)

	table.Rebind(req, newMsgID)
	h.d.containerFor(dcID).Add(newMsgID, newSeqNo, req.Body)
}

func (h *dcHandler) OnRPCResult(reqMsgID int64, payload []byte) {
	table := h.d.tableFor(h.dcID)

	req, ok := table.Lookup(reqMsgID)
	if !ok {
		return
	}

	payload = unwrapGzipPacked(payload)

	buf := mtwire.NewBufferFrom(payload)

	ctor, err := buf.PeekConstructor()
	if err == nil && ctor == ctorRPCErrorConstructor {
		if _, err := buf.Uint32(); err != nil {
			table.Resolve(req, Result{Err: err})
			return
		}

		code, err := buf.Int32()
		if err != nil {
			table.Resolve(req, Result{Err: err})
			return
		}

		message, err := buf.DecodeString()
		if err != nil {
			table.Resolve(req, Result{Err: err})
			return
		}

		table.Resolve(req, Result{Err: ParseRPCError(code, message)})

		return
	}

	if req.Cancelled {
		table.Resolve(req, Result{})
		return
	}

	table.Resolve(req, Result{Payload: payload})
}

const ctorRPCErrorConstructor = 0x2144ca19

func unwrapGzipPacked(payload []byte) []byte {
	buf := mtwire.NewBufferFrom(payload)

	ctor, err := buf.PeekConstructor()
	if err != nil || ctor != ctorGzipPacked {
		return payload
	}

	if _, err := buf.Uint32(); err != nil {
		return payload
	}

	packed, err := buf.DecodeBytes()
	if err != nil {
		return payload
	}

	reader, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return payload
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return payload
	}

	return decompressed
}
