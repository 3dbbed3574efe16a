// Package events implements the ambient "Events" pub/sub every component
// can report lifecycle moments to: AuthKey creation, DC migration, update
// gaps, flood waits, and similar facts a caller may want to observe without
// threading a callback through every layer. It is grounded on the teacher
// repository's mtglib/events.go (the eventBase{StreamID,Timestamp} shape and
// per-type constructors) and mtglib's EventStream (hash-sharded goroutine
// pool delivering each stream's events to one observer, so ordering within
// a stream is preserved while streams fan out across CPUs), repurposed from
// proxy connection lifecycle to sender/dispatcher/update-pipeline lifecycle.
package events

import (
	"strconv"
	"time"
)

// Event is the common interface every event type in this package
// implements.
type Event interface {
	StreamID() string
	Timestamp() time.Time
}

type eventBase struct {
	streamID  string
	timestamp time.Time
}

func newEventBase(streamID string) eventBase {
	return eventBase{streamID: streamID, timestamp: time.Now()}
}

// StreamID returns the id of the stream (conventionally a DC id, or an
// account-scoped constant for update-pipeline events) this event belongs
// to, used to pick a delivery lane.
func (e eventBase) StreamID() string {
	return e.streamID
}

// Timestamp returns when the event was generated.
func (e eventBase) Timestamp() time.Time {
	return e.timestamp
}

// EventAuthKeyCreated is emitted once the AuthKey exchange (§4.3) produces
// a usable AuthorizationKey for a DC.
type EventAuthKeyCreated struct {
	eventBase

	DC          int
	Fingerprint uint64
}

// NewEventAuthKeyCreated builds an EventAuthKeyCreated for dc.
func NewEventAuthKeyCreated(dc int, fingerprint uint64) EventAuthKeyCreated {
	return EventAuthKeyCreated{eventBase: newEventBase(dcStreamID(dc)), DC: dc, Fingerprint: fingerprint}
}

// EventMigrated is emitted when dcmanager reroutes traffic to a new DC
// after a *_MIGRATE_n error (§4.5).
type EventMigrated struct {
	eventBase

	FromDC int
	ToDC   int
	Reason string
}

// NewEventMigrated builds an EventMigrated.
func NewEventMigrated(from, to int, reason string) EventMigrated {
	return EventMigrated{eventBase: newEventBase(dcStreamID(from)), FromDC: from, ToDC: to, Reason: reason}
}

// EventFloodWait is emitted whenever the rpc package sleeps on a
// FLOOD_WAIT_n below threshold (§4.6 retry table, §8 property 5).
type EventFloodWait struct {
	eventBase

	DC      int
	Seconds int
}

// NewEventFloodWait builds an EventFloodWait.
func NewEventFloodWait(dc, seconds int) EventFloodWait {
	return EventFloodWait{eventBase: newEventBase(dcStreamID(dc)), DC: dc, Seconds: seconds}
}

// EventGapDetected is emitted when the updates pipeline detects a pts/qts
// gap and starts a difference fetch (§4.6 point 3, §8 property 4).
type EventGapDetected struct {
	eventBase

	ChannelID int64 // 0 for account-scoped gaps
	OldPts    int32
	NewPts    int32
}

// NewEventGapDetected builds an EventGapDetected. channelID is 0 for an
// account-scoped gap.
func NewEventGapDetected(channelID int64, oldPts, newPts int32) EventGapDetected {
	return EventGapDetected{
		eventBase: newEventBase(channelStreamID(channelID)),
		ChannelID: channelID,
		OldPts:    oldPts,
		NewPts:    newPts,
	}
}

// EventGapResolved is emitted once a buffered gap closes against the
// existing baseline, either because a live update caught up naturally
// (Forced=false) or because the gapForceFetchTimeout getDifference call
// succeeded (Forced=true). It does not cover the separate full-resync
// escalation tier, which emits EventGapForceResync instead (§4.6 point 4).
type EventGapResolved struct {
	eventBase

	ChannelID int64
	Forced    bool
}

// NewEventGapResolved builds an EventGapResolved.
func NewEventGapResolved(channelID int64, forced bool) EventGapResolved {
	return EventGapResolved{eventBase: newEventBase(channelStreamID(channelID)), ChannelID: channelID, Forced: forced}
}

// EventGapForceResync is emitted when a gap survives several consecutive
// getDifference failures and the pipeline discards the stale baseline to
// resync from the server's current state instead (§4.6 point 4), distinct
// from the plain timer-forced fetch EventGapResolved.Forced already
// covers.
type EventGapForceResync struct {
	eventBase

	ChannelID int64
	Attempts  int
}

// NewEventGapForceResync builds an EventGapForceResync.
func NewEventGapForceResync(channelID int64, attempts int) EventGapForceResync {
	return EventGapForceResync{eventBase: newEventBase(channelStreamID(channelID)), ChannelID: channelID, Attempts: attempts}
}

// EventRPCError is emitted for every RpcError the dispatcher surfaces to a
// caller (not ones it recovers from internally, per §7's policy list).
type EventRPCError struct {
	eventBase

	DC   int
	Code int
	Name string
}

// NewEventRPCError builds an EventRPCError.
func NewEventRPCError(dc, code int, name string) EventRPCError {
	return EventRPCError{eventBase: newEventBase(dcStreamID(dc)), DC: dc, Code: code, Name: name}
}

// EventReconnected is emitted after a transport error triggers the
// reconnect-and-resend path (§4.6 retry table, first row).
type EventReconnected struct {
	eventBase

	DC int
}

// NewEventReconnected builds an EventReconnected.
func NewEventReconnected(dc int) EventReconnected {
	return EventReconnected{eventBase: newEventBase(dcStreamID(dc)), DC: dc}
}

func dcStreamID(dc int) string {
	return "dc:" + strconv.Itoa(dc)
}

func channelStreamID(channelID int64) string {
	if channelID == 0 {
		return "account"
	}

	return "channel:" + strconv.FormatInt(channelID, 10)
}
