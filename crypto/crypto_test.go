package crypto_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/crypto"
)

func TestIGERoundTrip(t *testing.T) {
	key, err := crypto.RandomBytes(32)
	require.NoError(t, err)

	iv, err := crypto.RandomBytes(32)
	require.NoError(t, err)

	plaintext, err := crypto.RandomBytes(64)
	require.NoError(t, err)

	ciphertext, err := crypto.IGEEncrypt(key, iv, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := crypto.IGEDecrypt(key, iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestMsgKeyAndDeriveAESKeyIV(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i)
	}

	plaintext := []byte("hello from the test suite, padded to 16 bytes!!")

	msgKey, err := crypto.MsgKey(authKey, crypto.DirectionClientToServer, plaintext)
	require.NoError(t, err)
	require.Len(t, msgKey, 16)

	key, iv, err := crypto.DeriveAESKeyIV(authKey, msgKey, crypto.DirectionClientToServer)
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.Len(t, iv, 32)

	// Property 2 (§8): two directions must never derive the same key/iv
	// from the same msg_key, since they draw from disjoint auth_key slices.
	key2, iv2, err := crypto.DeriveAESKeyIV(authKey, msgKey, crypto.DirectionServerToClient)
	require.NoError(t, err)
	require.NotEqual(t, key, key2)
	require.NotEqual(t, iv, iv2)
}

func TestAuthKeyID(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(255 - i)
	}

	id1 := crypto.AuthKeyID(authKey)
	id2 := crypto.AuthKeyID(authKey)
	require.Equal(t, id1, id2)

	authKey[0] ^= 0xFF
	require.NotEqual(t, id1, crypto.AuthKeyID(authKey))
}

func TestFactorizePQ(t *testing.T) {
	// S1 from spec.md: pq = 1724114033281923457 = 1229739323 * 1402015859.
	const pq = 1724114033281923457

	p, q, err := crypto.FactorizePQ(pq)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1229739323, 1402015859}, []uint64{p, q})
	require.Equal(t, uint64(pq), p*q)
}

func TestFactorizePQEven(t *testing.T) {
	p, q, err := crypto.FactorizePQ(2 * 999999999989)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{2, 999999999989}, []uint64{p, q})
}

func TestComputeFingerprintIsStableAndKeySensitive(t *testing.T) {
	n, ok := new(big.Int).SetString(
		"c150023e2f70db7985ded064759cfecf0af328e69a41daf4d6f01b538"+
			"3840530bc9bb6e696ab2bf94b2f6d8c0b72ba5a0e3d15ac14dbcd35dd"+
			"5fc1a7c0da8b08b5a2e1b2dacbf30e7e1e0a3f3db5de1d1f7c4f7e1e"+
			"1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5"+
			"d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192",
		16)
	require.True(t, ok)

	key := crypto.RSAPublicKey{N: n, E: 65537}
	fp1 := crypto.ComputeFingerprint(key)
	fp2 := crypto.ComputeFingerprint(key)
	require.Equal(t, fp1, fp2)

	other := crypto.RSAPublicKey{N: new(big.Int).Add(n, big.NewInt(2)), E: 65537}
	require.NotEqual(t, fp1, crypto.ComputeFingerprint(other))
}
