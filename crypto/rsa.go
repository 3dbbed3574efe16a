package crypto

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/mtprotogo/core/mtwire"
)

// RSAPublicKey is one of Telegram's small set of well-known server keys
// used only during AuthKey exchange (§4.3), identified by the low 64 bits
// of SHA1(serialized key), its fingerprint.
type RSAPublicKey struct {
	N           *big.Int
	E           int64
	Fingerprint uint64
}

// RSAEncrypt pads data with MTProto's RSA-PKCS-for-key-exchange scheme and
// encrypts it with the server's public key, producing a fixed 256-byte
// block. data must be at most 144 bytes (the inner p_q_inner_data
// payload); the padding scheme here follows the "aux_hash-guarded random
// padding, then re-check for a key fit" procedure MTProto mandates to stop
// a wide range of RSA padding-oracle attacks:
//
//  1. data_with_padding = data || random padding, total 192 bytes.
//  2. data_pad_reversed = reverse(data_with_padding).
//  3. Repeat with fresh padding until
//     big-endian(data_with_padding || SHA1(data_pad_reversed)) < N.
//  4. Encrypt that 212-byte buffer (192 + 20 SHA1 bytes) with RSA, no
//     further padding.
func RSAEncrypt(pub RSAPublicKey, data []byte) ([]byte, error) {
	if len(data) > 144 {
		return nil, fmt.Errorf("crypto: rsa plaintext too long: %d > 144", len(data))
	}

	for attempt := 0; attempt < 64; attempt++ {
		padded := make([]byte, 192)
		copy(padded, data)

		pad, err := RandomBytes(192 - len(data))
		if err != nil {
			return nil, err
		}

		copy(padded[len(data):], pad)

		reversed := make([]byte, len(padded))
		for i, b := range padded {
			reversed[len(padded)-1-i] = b
		}

		digest := SHA1(reversed)

		toEncrypt := make([]byte, 0, 224)
		toEncrypt = append(toEncrypt, padded...)
		toEncrypt = append(toEncrypt, digest...)

		asInt := new(big.Int).SetBytes(toEncrypt)
		if asInt.Cmp(pub.N) >= 0 {
			continue
		}

		cipher := ModExp(asInt, big.NewInt(pub.E), pub.N)

		out := make([]byte, 256)
		cipher.FillBytes(out)

		return out, nil
	}

	return nil, fmt.Errorf("crypto: could not find a fitting rsa padding after 64 attempts")
}

// rsaPublicKeyConstructor is the TL constructor id of rsa_public_key
// (n:bytes e:bytes = RSAPublicKey), whose serialization the fingerprint is
// taken over (§4.3 step 1).
const rsaPublicKeyConstructor = 0x7a19cb76

// ComputeFingerprint derives the low 64 bits of SHA1(serialized
// rsa_public_key) for pub, the value servers advertise in resPQ and
// clients use to select which key they hold a match for.
func ComputeFingerprint(pub RSAPublicKey) uint64 {
	eBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(eBytes, uint64(pub.E))

	for len(eBytes) > 1 && eBytes[0] == 0 {
		eBytes = eBytes[1:]
	}

	buf := mtwire.NewBuffer()
	buf.PutUint32(rsaPublicKeyConstructor)
	buf.PutBytes(pub.N.Bytes())
	buf.PutBytes(eBytes)

	digest := SHA1(buf.Bytes())

	return binary.LittleEndian.Uint64(digest[12:20])
}
