package crypto

import "fmt"

// Direction distinguishes which side of the authorization key is used to
// derive a message's AES key/iv: the two directions use disjoint slices of
// the same 2048-bit key so client->server and server->client traffic never
// reuse key material (§4.2).
type Direction int

const (
	// DirectionClientToServer is used when this process is encrypting an
	// outgoing message.
	DirectionClientToServer Direction = 0
	// DirectionServerToClient is used when this process is decrypting an
	// incoming message.
	DirectionServerToClient Direction = 8
)

// MsgKey computes the msg_key for plaintext under authKey and direction:
// the middle 128 bits of SHA256(authKeyFragment || plaintext), where
// authKeyFragment is the 32-byte slice of authKey at offset 88+direction:
// 88 for DirectionClientToServer, 96 for DirectionServerToClient (§4.2,
// testable property 2).
func MsgKey(authKey []byte, direction Direction, plaintext []byte) ([]byte, error) {
	if len(authKey) != 256 {
		return nil, fmt.Errorf("crypto: authorization key must be 256 bytes, got %d", len(authKey))
	}

	offset := 88 + int(direction)
	fragment := authKey[offset : offset+32]

	large := SHA256(fragment, plaintext)

	return large[8:24], nil
}

// DeriveAESKeyIV computes (aes_key, aes_iv) from msgKey and authKey for the
// given direction, per the MTProto 2.0 key derivation in §4.2.
func DeriveAESKeyIV(authKey, msgKey []byte, direction Direction) (key, iv []byte, err error) {
	if len(authKey) != 256 {
		return nil, nil, fmt.Errorf("crypto: authorization key must be 256 bytes, got %d", len(authKey))
	}

	if len(msgKey) != 16 {
		return nil, nil, fmt.Errorf("crypto: msg_key must be 16 bytes, got %d", len(msgKey))
	}

	x := int(direction)

	sha256A := SHA256(msgKey, authKey[x:x+36])
	sha256B := SHA256(authKey[x+40:x+76], msgKey)

	key = make([]byte, 0, 32)
	key = append(key, sha256A[0:8]...)
	key = append(key, sha256B[8:24]...)
	key = append(key, sha256A[24:32]...)

	iv = make([]byte, 0, 32)
	iv = append(iv, sha256B[0:8]...)
	iv = append(iv, sha256A[8:24]...)
	iv = append(iv, sha256B[24:32]...)

	return key, iv, nil
}
