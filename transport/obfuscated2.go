package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// Obfuscated2 layers AES-CTR obfuscation over a 64-byte handshake preamble
// (§4.1 "Obfuscated2"), adapted from the teacher repository's
// mtglib/internal/obfuscated2 package. That package implements the
// *responding* side of the handshake (a proxy terminating an inbound
// client); this file implements the *initiating* side a genuine client
// dialing Telegram needs, which the teacher also has (as
// ServerHandshake, used when mtg itself dials out to a Telegram DC) --
// the encryptor/decryptor derivation and random-preamble validation are
// unchanged, only the direction of who sends the preamble is fixed to
// "us" rather than configurable.

const handshakeSize = 64

// forbidden leading 4-byte patterns and the 0xef marker byte, taken from
// the MTProto reference implementation: these would make the handshake
// preamble look like the start of one of the other three framings to a
// deep packet inspector, defeating the point of obfuscation.
var forbiddenPrefixes = map[uint32]struct{}{
	0x44414548: {},
	0x54534f50: {},
	0x20544547: {},
	0x4954504f: {},
	0xeeeeeeee: {},
}

type obfuscated2Conn struct {
	conn      net.Conn
	encryptor cipher.Stream
	decryptor cipher.Stream
	inner     Conn
}

func newObfuscated2Conn(raw net.Conn) (Conn, error) {
	encryptor, decryptor, err := clientObfuscated2Handshake(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}

	inner, err := newIntermediateConn(&obfuscatedIO{
		Conn:      raw,
		encryptor: encryptor,
		decryptor: decryptor,
	})
	if err != nil {
		return nil, err
	}

	return &obfuscated2Conn{conn: raw, encryptor: encryptor, decryptor: decryptor, inner: inner}, nil
}

func (o *obfuscated2Conn) Send(frame []byte) error      { return o.inner.Send(frame) }
func (o *obfuscated2Conn) Recv() ([]byte, error)        { return o.inner.Recv() }
func (o *obfuscated2Conn) Close() error                 { return o.conn.Close() }
func (o *obfuscated2Conn) RemoteAddr() net.Addr         { return o.conn.RemoteAddr() }

// obfuscatedIO wraps conn so that the Intermediate framing written above
// is itself obfuscated by the AES-CTR streams negotiated in the
// handshake, matching the teacher's obfuscated2.Conn Read/Write shape.
type obfuscatedIO struct {
	net.Conn
	encryptor cipher.Stream
	decryptor cipher.Stream
}

func (c *obfuscatedIO) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		return n, err
	}

	c.decryptor.XORKeyStream(p[:n], p[:n])

	return n, nil
}

func (c *obfuscatedIO) Write(p []byte) (int, error) {
	buf := acquireObfBuffer(len(p))
	defer releaseObfBuffer(buf)

	dst := (*buf)[:len(p)]
	c.encryptor.XORKeyStream(dst, p)

	return c.Conn.Write(dst)
}

var obfWriteBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 16384)
		return &buf
	},
}

func acquireObfBuffer(size int) *[]byte {
	buf := obfWriteBufferPool.Get().(*[]byte) //nolint:forcetypeassert
	if cap(*buf) < size {
		newBuf := make([]byte, size)
		return &newBuf
	}

	*buf = (*buf)[:size]

	return buf
}

func releaseObfBuffer(buf *[]byte) {
	if cap(*buf) > 262144 {
		return
	}

	obfWriteBufferPool.Put(buf)
}

// clientObfuscated2Handshake generates a random 64-byte preamble, derives
// the (encryptor, decryptor) AES-CTR streams from it, sends it (with the
// key/iv bytes restored to plaintext so the remote side can read them
// directly), and returns the streams ready to obfuscate the Intermediate
// framing layered on top.
func clientObfuscated2Handshake(conn net.Conn) (encryptor, decryptor cipher.Stream, err error) {
	var data [handshakeSize]byte

	const maxAttempts = 100

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(data[:]); err != nil {
			return nil, nil, fmt.Errorf("transport: cannot generate obfuscated2 handshake: %w", err)
		}

		if data[0] == 0xef {
			continue
		}

		if _, bad := forbiddenPrefixes[binary.LittleEndian.Uint32(data[:4])]; bad {
			continue
		}

		if data[4]|data[5]|data[6]|data[7] == 0 {
			continue
		}

		// Tag the handshake as Intermediate (0xeeeeeeee) at offset 56.
		copy(data[56:60], intermediateMarker[:])

		key := data[8:40]
		iv := data[40:56]

		enc, err := newAESCTR(key, iv)
		if err != nil {
			return nil, nil, err
		}

		reversedKey := reverseBytes(key)
		reversedIV := reverseBytes(iv)

		dec, err := newAESCTR(reversedKey, reversedIV)
		if err != nil {
			return nil, nil, err
		}

		encryptedCopy := data

		enc.XORKeyStream(encryptedCopy[:], encryptedCopy[:])
		// Restore the plaintext key/iv bytes: the remote side must be
		// able to read them directly off the wire.
		copy(encryptedCopy[8:56], data[8:56])

		if _, err := conn.Write(encryptedCopy[:]); err != nil {
			return nil, nil, fmt.Errorf("transport: cannot send obfuscated2 handshake: %w", err)
		}

		return enc, dec, nil
	}

	return nil, nil, fmt.Errorf("transport: could not generate a valid obfuscated2 handshake after %d attempts", maxAttempts)
}

func newAESCTR(key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("transport: cannot create aes cipher: %w", err)
	}

	return cipher.NewCTR(block, iv), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}

	return out
}
