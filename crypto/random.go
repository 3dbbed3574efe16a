package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: cannot read random bytes: %w", err)
	}

	return buf, nil
}

// RandomUint64 returns a cryptographically secure random uint64, suitable
// for nonces and session ids (§3 Session).
func RandomUint64() (uint64, error) {
	b, err := RandomBytes(8)
	if err != nil {
		return 0, err
	}

	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v, nil
}

// RandomInt128 returns a random value suitable for MTProto's 128-bit
// nonces (n_c, server_nonce echoes, new_nonce).
func RandomInt128() (*big.Int, error) {
	b, err := RandomBytes(16)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(b), nil
}

// RandomInt256 returns a random value suitable for MTProto's 256-bit
// new_nonce.
func RandomInt256() (*big.Int, error) {
	b, err := RandomBytes(32)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(b), nil
}
