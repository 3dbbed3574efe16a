package rpc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RPCError is the typed error surfaced for any 300/400/500-series error
// Telegram returns in an rpc_error (§7 "typed RPC error").
type RPCError struct {
	Code  int32
	Name  string
	Value int64
}

func (e *RPCError) Error() string {
	if e.Value != 0 {
		return fmt.Sprintf("rpc: %d %s%d", e.Code, e.Name, e.Value)
	}

	return fmt.Sprintf("rpc: %d %s", e.Code, e.Name)
}

// ParseRPCError splits Telegram's "NAME" or "NAME_123" error string shape
// into a name and an optional trailing integer (used for FLOOD_WAIT_n,
// PHONE_MIGRATE_n, and friends).
func ParseRPCError(code int32, errorMessage string) *RPCError {
	name := errorMessage
	value := int64(0)

	if idx := strings.LastIndexByte(errorMessage, '_'); idx != -1 {
		if n, err := strconv.ParseInt(errorMessage[idx+1:], 10, 64); err == nil {
			name = errorMessage[:idx+1]
			value = n
		}
	}

	return &RPCError{Code: code, Name: name, Value: value}
}

// FloodWaitThreshold is the default cutoff (§4.6): FLOOD_WAIT_n at or
// below this many seconds is slept through transparently; above it the
// caller is failed immediately.
const FloodWaitThreshold = 60 * time.Second

// IsFloodWait reports whether err is a FLOOD_WAIT_n error and, if so, the
// wait duration.
func IsFloodWait(err error) (time.Duration, bool) {
	var rpcErr *RPCError

	if !errors.As(err, &rpcErr) {
		return 0, false
	}

	if rpcErr.Name != "FLOOD_WAIT_" {
		return 0, false
	}

	return time.Duration(rpcErr.Value) * time.Second, true
}

// MigrateTarget reports whether err is one of the *_MIGRATE_n errors and,
// if so, which DC to migrate to.
func MigrateTarget(err error) (dc int, ok bool) {
	var rpcErr *RPCError

	if !errors.As(err, &rpcErr) {
		return 0, false
	}

	switch rpcErr.Name {
	case "PHONE_MIGRATE_", "NETWORK_MIGRATE_", "USER_MIGRATE_", "FILE_MIGRATE_":
		return int(rpcErr.Value), true
	default:
		return 0, false
	}
}

// IsAuthKeyUnregistered reports the fatal AUTH_KEY_UNREGISTERED condition
// (§4.6 "Fail immediately; caller must re-authenticate").
func IsAuthKeyUnregistered(err error) bool {
	var rpcErr *RPCError

	if !errors.As(err, &rpcErr) {
		return false
	}

	return rpcErr.Code == 401 && rpcErr.Name == "AUTH_KEY_UNREGISTERED"
}

// IsAuthKeyDuplicated reports the AUTH_KEY_DUPLICATED condition: the same
// AuthorizationKey is in active use by another session. Handling it is the
// caller-configurable switch §9 calls for (mtclient.Config's
// RekeyOnDuplicateAuthKey): the core only classifies the error, it does not
// unilaterally decide whether to clear and renegotiate the key.
func IsAuthKeyDuplicated(err error) bool {
	var rpcErr *RPCError

	if !errors.As(err, &rpcErr) {
		return false
	}

	return rpcErr.Name == "AUTH_KEY_DUPLICATED"
}

// cooldownBreaker is a simplified 2-state circuit breaker -- Available and
// Cooldown, no Half-Open probing state -- grounded directly on
// network/circuit_breaker.go's cooldownDialer: after openThreshold
// consecutive failures it refuses new attempts until reconnectTimeout
// elapses.
type cooldownBreaker struct {
	openThreshold    uint32
	reconnectTimeout time.Duration

	failures      uint32
	cooldownUntil time.Time
}

func newCooldownBreaker(openThreshold uint32, reconnectTimeout time.Duration) *cooldownBreaker {
	return &cooldownBreaker{openThreshold: openThreshold, reconnectTimeout: reconnectTimeout}
}

func (c *cooldownBreaker) allow(now time.Time) bool {
	return c.cooldownUntil.IsZero() || now.After(c.cooldownUntil)
}

func (c *cooldownBreaker) recordSuccess() {
	c.failures = 0
	c.cooldownUntil = time.Time{}
}

func (c *cooldownBreaker) recordFailure(now time.Time) {
	c.failures++

	if c.failures >= c.openThreshold {
		c.cooldownUntil = now.Add(c.reconnectTimeout)
		c.failures = 0
	}
}

// ErrCircuitOpen is returned by Retry500Series while the breaker is
// cooling down.
var ErrCircuitOpen = errors.New("rpc: too many consecutive 500-series errors, cooling down")

// Retry500Series retries fn a small bounded number of times with
// exponential backoff (§4.6 "500-series: small bounded number of retries
// with backoff; then fail"), tripping a cooldown breaker after repeated
// runs of failures so a degraded DC does not get hammered by every
// caller's own retry loop.
type Retry500Series struct {
	breaker    *cooldownBreaker
	maxRetries uint64
}

// NewRetry500Series creates a retrier with sensible defaults: trip after 5
// consecutive failures, cool down for 30s, retry each call up to 3 times.
func NewRetry500Series() *Retry500Series {
	return &Retry500Series{
		breaker:    newCooldownBreaker(5, 30*time.Second),
		maxRetries: 3,
	}
}

// Do runs fn, retrying on any error for which is500 reports true, up to
// maxRetries times with exponential backoff, unless the circuit breaker is
// currently open.
func (r *Retry500Series) Do(fn func() error, is500 func(error) bool) error {
	if !r.breaker.allow(time.Now()) {
		return ErrCircuitOpen
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries)

	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}

		if !is500(err) {
			return backoff.Permanent(err)
		}

		return err
	}, bo)

	if err != nil {
		r.breaker.recordFailure(time.Now())
	} else {
		r.breaker.recordSuccess()
	}

	return err
}
