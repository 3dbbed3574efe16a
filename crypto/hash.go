package crypto

import (
	"crypto/sha1" //nolint:gosec // mandated by the MTProto wire format, not used for security here
	"crypto/sha256"
)

// SHA1 returns the SHA-1 digest of data. MTProto uses SHA-1 for the
// authorization key fingerprint and for legacy (1.0) message-key
// derivation; the wire format mandates it, it is not a security choice
// made by this code.
func SHA1(data ...[]byte) []byte {
	h := sha1.New() //nolint:gosec
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// SHA256 returns the SHA-256 digest of data, used throughout MTProto 2.0
// key derivation.
func SHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// AuthKeyID returns the low 64 bits of SHA1(key), the auth_key_id prefix
// every encrypted MTProto message carries (§3 AuthorizationKey).
func AuthKeyID(key []byte) uint64 {
	digest := SHA1(key)
	return beUint64(digest[len(digest)-8:])
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v
}
