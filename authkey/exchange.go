// Package authkey implements §4.3: the three-step Diffie-Hellman exchange
// that produces a 2048-bit AuthorizationKey and the first server salt. It
// runs over an unencrypted transport.Conn (the plaintext phase before any
// AuthorizationKey exists) and has no teacher-repository equivalent: the
// proxy this module was adapted from never performs key exchange, it only
// relays already-encrypted client traffic.
package authkey

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/mtprotogo/core/crypto"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/transport"
)

// Result is the product of a successful exchange.
type Result struct {
	// Key is the 2048-bit (256-byte) shared secret.
	Key []byte
	// Salt is the first server salt, derived by XORing the low 64 bits
	// of new_nonce with server_nonce (§4.3 step 3).
	Salt uint64
	// Fingerprint is the low 64 bits of SHA1(Key) (§3 AuthorizationKey).
	Fingerprint uint64
}

// KnownPublicKeys resolves an RSA public key by its fingerprint, as
// advertised by the server in resPQ (§4.3 step 1). The core does not
// bundle Telegram's real keys (they rotate and are out of this
// specification's concern); callers supply whichever set their
// deployment trusts.
type KnownPublicKeys interface {
	Lookup(fingerprint uint64) (crypto.RSAPublicKey, bool)
}

// MapPublicKeys is the trivial KnownPublicKeys implementation.
type MapPublicKeys map[uint64]crypto.RSAPublicKey

// Lookup implements KnownPublicKeys.
func (m MapPublicKeys) Lookup(fp uint64) (crypto.RSAPublicKey, bool) {
	k, ok := m[fp]
	return k, ok
}

const defaultMaxRestarts = 5

// Run performs the full three-step exchange over conn using keys to
// validate the server's offered fingerprint, making at most
// defaultMaxRestarts attempts in total and restarting from step 1 after an
// integrity failure or a dh_gen_retry (§4.3 "Failure modes").
func Run(ctx context.Context, conn transport.Conn, keys KnownPublicKeys, logger mtclog.Logger) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < defaultMaxRestarts; attempt++ {
		result, err := runOnce(ctx, conn, keys, logger)
		if err == nil {
			return result, nil
		}

		lastErr = err

		var fatal *FatalDHError
		if errors.As(err, &fatal) {
			return nil, fmt.Errorf("authkey: %w", err)
		}

		var retryErr *RetryDHError
		if !asRetryDH(err, &retryErr) {
			logger.WarningError("authkey exchange failed, restarting from step 1", err)
			continue
		}

		// dh_gen_retry: only step 3 needs to be rerun, but since this
		// function has no persistent step-1/2 state across calls, we
		// conservatively restart the whole exchange.
	}

	return nil, fmt.Errorf("authkey: exchange failed after %d attempts: %w", defaultMaxRestarts, lastErr)
}

func asRetryDH(err error, target **RetryDHError) bool {
	re, ok := err.(*RetryDHError) //nolint:errorlint
	if ok {
		*target = re
	}

	return ok
}

// RetryDHError signals dh_gen_retry (§4.3). Run handles it by restarting
// the whole exchange from step 1 with fresh nonces; step 3 is not rerun on
// its own.
type RetryDHError struct{}

func (e *RetryDHError) Error() string { return "authkey: server requested dh_gen_retry" }

// FatalDHError signals dh_gen_fail (§4.3): the exchange cannot succeed.
type FatalDHError struct{}

func (e *FatalDHError) Error() string { return "authkey: server reported dh_gen_fail" }

func runOnce(ctx context.Context, conn transport.Conn, keys KnownPublicKeys, logger mtclog.Logger) (*Result, error) {
	nC, err := crypto.RandomInt128()
	if err != nil {
		return nil, err
	}

	reqPQ := encodeReqPQMulti(nC)
	if err := conn.Send(reqPQ); err != nil {
		return nil, fmt.Errorf("authkey: cannot send req_pq_multi: %w", err)
	}

	resPQFrame, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot receive resPQ: %w", err)
	}

	resPQ, err := decodeResPQ(resPQFrame)
	if err != nil {
		return nil, err
	}

	if resPQ.Nonce.Cmp(nC) != 0 {
		return nil, fmt.Errorf("authkey: resPQ nonce mismatch")
	}

	p, q, err := crypto.FactorizePQ(resPQ.PQ)
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot factorize pq: %w", err)
	}

	var pub crypto.RSAPublicKey

	found := false

	for _, fp := range resPQ.Fingerprints {
		if k, ok := keys.Lookup(fp); ok {
			pub = k
			found = true

			break
		}
	}

	if !found {
		return nil, fmt.Errorf("authkey: no known public key among server fingerprints")
	}

	newNonce, err := crypto.RandomInt256()
	if err != nil {
		return nil, err
	}

	innerData := encodePQInnerData(resPQ.PQ, p, q, nC, resPQ.ServerNonce, newNonce)

	encrypted, err := crypto.RSAEncrypt(pub, innerData)
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot rsa-encrypt inner data: %w", err)
	}

	reqDH := encodeReqDHParams(nC, resPQ.ServerNonce, p, q, pub.Fingerprint, encrypted)
	if err := conn.Send(reqDH); err != nil {
		return nil, fmt.Errorf("authkey: cannot send req_DH_params: %w", err)
	}

	dhFrame, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot receive server_DH_params: %w", err)
	}

	dhParams, err := decodeServerDHParamsOK(dhFrame, nC, resPQ.ServerNonce, newNonce)
	if err != nil {
		return nil, err
	}

	b, err := crypto.RandomInt256()
	if err != nil {
		return nil, err
	}

	gB := crypto.ModExp(big.NewInt(int64(dhParams.G)), b, dhParams.DHPrime)
	if err := crypto.DHCheckPublicValue(gB, dhParams.DHPrime); err != nil {
		return nil, fmt.Errorf("authkey: our own g_b failed range check: %w", err)
	}

	if err := crypto.DHCheckPublicValue(dhParams.GA, dhParams.DHPrime); err != nil {
		return nil, fmt.Errorf("authkey: server g_a failed range check: %w", err)
	}

	if err := crypto.DHCheckGoodPrime(dhParams.DHPrime, dhParams.G); err != nil {
		logger.WarningError("authkey: server offered a suspicious dh prime/generator", err)
		return nil, err
	}

	sharedSecret := crypto.ModExp(dhParams.GA, b, dhParams.DHPrime)

	setClientDH, err := encodeSetClientDHParams(nC, resPQ.ServerNonce, newNonce, gB, dhParams.retryID)
	if err != nil {
		return nil, err
	}

	if err := conn.Send(setClientDH); err != nil {
		return nil, fmt.Errorf("authkey: cannot send set_client_DH_params: %w", err)
	}

	ackFrame, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot receive dh_gen_ok/retry/fail: %w", err)
	}

	ackKind, err := decodeDHGenAck(ackFrame, nC, resPQ.ServerNonce, newNonce, sharedSecret)
	if err != nil {
		return nil, err
	}

	switch ackKind {
	case dhGenOK:
		// fallthrough to success below
	case dhGenRetry:
		return nil, &RetryDHError{}
	case dhGenFail:
		return nil, &FatalDHError{}
	}

	keyBytes := make([]byte, 256)
	sharedSecret.FillBytes(keyBytes)

	fingerprint := crypto.AuthKeyID(keyBytes)

	salt := firstSalt(newNonce, resPQ.ServerNonce)

	return &Result{Key: keyBytes, Salt: salt, Fingerprint: fingerprint}, nil
}

// firstSalt derives the initial server salt by XORing the low 64 bits of
// new_nonce with the low 64 bits of server_nonce (§4.3 step 3).
func firstSalt(newNonce, serverNonce *big.Int) uint64 {
	nn := newNonce.Bytes()
	sn := serverNonce.Bytes()

	low := func(b []byte, n int) uint64 {
		var v uint64
		start := len(b) - n
		if start < 0 {
			start = 0
		}

		for _, c := range b[start:] {
			v = v<<8 | uint64(c)
		}

		return v
	}

	return low(nn, 8) ^ low(sn, 8)
}
