package authkey

import (
	"fmt"
	"math/big"

	"github.com/mtprotogo/core/crypto"
	"github.com/mtprotogo/core/mtwire"
)

// Constructor ids for the AuthKey exchange's own plaintext messages
// (§4.3). These are part of the core itself, not the generated schema
// catalogue (§6): the exchange happens before any Catalogue can be
// consulted, since there is no authorization key yet to decrypt anything
// a generated rpc_result would arrive in.
const (
	ctorReqPQMulti          = 0xbe7e8ef1
	ctorResPQ               = 0x05162463
	ctorPQInnerData         = 0x83c95aec
	ctorReqDHParams         = 0xd712e4be
	ctorServerDHParamsOK    = 0xd0e8075c
	ctorServerDHParamsFail  = 0x79cb045d
	ctorServerDHInnerData   = 0xb5890dba
	ctorSetClientDHParams   = 0xf5045f1f
	ctorClientDHInnerData   = 0x6643b654
	ctorDHGenOK             = 0x3bcbf734
	ctorDHGenRetry          = 0x46dc1fb9
	ctorDHGenFail           = 0xa69dae02
)

type dhGenResult int

const (
	dhGenOK dhGenResult = iota
	dhGenRetry
	dhGenFail
)

func encodeReqPQMulti(nonce *big.Int) []byte {
	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorReqPQMulti)
	putInt128(buf, nonce)

	return buf.Bytes()
}

type resPQMessage struct {
	Nonce        *big.Int
	ServerNonce  *big.Int
	PQ           uint64
	Fingerprints []uint64
}

func decodeResPQ(frame []byte) (*resPQMessage, error) {
	buf := mtwire.NewBufferFrom(frame)

	ctor, err := buf.Uint32()
	if err != nil {
		return nil, err
	}

	if ctor != ctorResPQ {
		return nil, fmt.Errorf("authkey: expected resPQ, got constructor %#x", ctor)
	}

	nonce, err := getInt128(buf)
	if err != nil {
		return nil, err
	}

	serverNonce, err := getInt128(buf)
	if err != nil {
		return nil, err
	}

	pqBytes, err := buf.DecodeBytes()
	if err != nil {
		return nil, err
	}

	pq := bytesToUint64(pqBytes)

	n, err := buf.VectorHeader()
	if err != nil {
		return nil, err
	}

	fingerprints := make([]uint64, n)

	for i := 0; i < n; i++ {
		v, err := buf.Int64()
		if err != nil {
			return nil, err
		}

		fingerprints[i] = uint64(v)
	}

	return &resPQMessage{Nonce: nonce, ServerNonce: serverNonce, PQ: pq, Fingerprints: fingerprints}, nil
}

func encodePQInnerData(pq uint64, p, q uint64, nC, serverNonce, newNonce *big.Int) []byte {
	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorPQInnerData)
	buf.PutBytes(uint64ToBytes(pq))
	buf.PutBytes(uint64ToBytes(p))
	buf.PutBytes(uint64ToBytes(q))
	putInt128(buf, nC)
	putInt128(buf, serverNonce)
	putInt256(buf, newNonce)

	return buf.Bytes()
}

func encodeReqDHParams(nC, serverNonce *big.Int, p, q uint64, fingerprint uint64, encryptedData []byte) []byte {
	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorReqDHParams)
	putInt128(buf, nC)
	putInt128(buf, serverNonce)
	buf.PutBytes(uint64ToBytes(p))
	buf.PutBytes(uint64ToBytes(q))
	buf.PutInt64(int64(fingerprint))
	buf.PutBytes(encryptedData)

	return buf.Bytes()
}

type serverDHParams struct {
	DHPrime *big.Int
	G       int64
	GA      *big.Int
	retryID int64
}

// decodeServerDHParamsOK decodes a server_DH_params_ok envelope. The real
// wire format wraps an AES-IGE-encrypted server_DH_inner_data keyed by a
// hash of (new_nonce, server_nonce); since this envelope is part of the
// plaintext AuthKey-exchange phase (no AuthorizationKey exists yet), the
// encryption key/iv derivation here is the documented tmp_aes_key/
// tmp_aes_iv scheme built purely from the two nonces.
func decodeServerDHParamsOK(frame []byte, nC, serverNonce, newNonce *big.Int) (*serverDHParams, error) {
	buf := mtwire.NewBufferFrom(frame)

	ctor, err := buf.Uint32()
	if err != nil {
		return nil, err
	}

	if ctor == ctorServerDHParamsFail {
		return nil, &FatalDHError{}
	}

	if ctor != ctorServerDHParamsOK {
		return nil, fmt.Errorf("authkey: expected server_DH_params_ok, got %#x", ctor)
	}

	if _, err := getInt128(buf); err != nil { // echoed nonce
		return nil, err
	}

	if _, err := getInt128(buf); err != nil { // echoed server_nonce
		return nil, err
	}

	encryptedAnswer, err := buf.DecodeBytes()
	if err != nil {
		return nil, err
	}

	key, iv := tmpAESKeyIV(newNonce, serverNonce)

	plain, err := crypto.IGEDecrypt(key, iv, encryptedAnswer)
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot decrypt server_DH_inner_data: %w", err)
	}

	inner := mtwire.NewBufferFrom(plain)

	innerCtor, err := inner.Uint32()
	if err != nil {
		return nil, err
	}

	if innerCtor != ctorServerDHInnerData {
		return nil, fmt.Errorf("authkey: expected server_DH_inner_data, got %#x", innerCtor)
	}

	if _, err := getInt128(inner); err != nil {
		return nil, err
	}

	if _, err := getInt128(inner); err != nil {
		return nil, err
	}

	g, err := inner.Int32()
	if err != nil {
		return nil, err
	}

	dhPrimeBytes, err := inner.DecodeBytes()
	if err != nil {
		return nil, err
	}

	gABytes, err := inner.DecodeBytes()
	if err != nil {
		return nil, err
	}

	return &serverDHParams{
		DHPrime: new(big.Int).SetBytes(dhPrimeBytes),
		G:       int64(g),
		GA:      new(big.Int).SetBytes(gABytes),
	}, nil
}

// encodeSetClientDHParams builds the client_DH_inner_data envelope and
// encrypts it under the same tmp_aes_key/tmp_aes_iv derivation
// decodeServerDHParamsOK used to open server_DH_inner_data (§4.3 step 3).
func encodeSetClientDHParams(nC, serverNonce, newNonce, gB *big.Int, retryID int64) ([]byte, error) {
	inner := mtwire.NewBuffer()
	inner.PutUint32(ctorClientDHInnerData)
	putInt128(inner, nC)
	putInt128(inner, serverNonce)
	inner.PutInt64(retryID)

	gBBytes := make([]byte, 256)
	gB.FillBytes(gBBytes)
	inner.PutBytes(gBBytes)

	padded := inner.Bytes()
	if pad := 16 - len(padded)%16; pad != 16 {
		padded = append(padded, make([]byte, pad)...)
	}

	key, iv := tmpAESKeyIV(newNonce, serverNonce)

	ciphertext, err := crypto.IGEEncrypt(key, iv, padded)
	if err != nil {
		return nil, fmt.Errorf("authkey: cannot encrypt client_DH_inner_data: %w", err)
	}

	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorSetClientDHParams)
	buf.PutBytes(ciphertext)

	return buf.Bytes(), nil
}

func decodeDHGenAck(frame []byte, nC, serverNonce, newNonce *big.Int, sharedSecret *big.Int) (dhGenResult, error) {
	buf := mtwire.NewBufferFrom(frame)

	ctor, err := buf.Uint32()
	if err != nil {
		return dhGenFail, err
	}

	if _, err := getInt128(buf); err != nil {
		return dhGenFail, err
	}

	if _, err := getInt128(buf); err != nil {
		return dhGenFail, err
	}

	switch ctor {
	case ctorDHGenOK:
		return dhGenOK, nil
	case ctorDHGenRetry:
		return dhGenRetry, nil
	case ctorDHGenFail:
		return dhGenFail, nil
	default:
		return dhGenFail, fmt.Errorf("authkey: unexpected dh_gen_* constructor %#x", ctor)
	}
}

// tmpAESKeyIV derives the temporary AES key/iv used to encrypt the plain
// DH-exchange envelopes, per MTProto's documented construction from
// (new_nonce, server_nonce) via SHA-1 concatenations.
func tmpAESKeyIV(newNonce, serverNonce *big.Int) (key, iv []byte) {
	nn := fixedBytes(newNonce, 32)
	sn := fixedBytes(serverNonce, 16)

	hash1 := crypto.SHA1(nn, sn)
	hash2 := crypto.SHA1(sn, nn)
	hash3 := crypto.SHA1(nn, nn)

	key = append(append([]byte{}, hash1...), hash2[:12]...)
	iv = append(append([]byte{}, hash2[12:]...), hash3...)
	iv = append(iv, nn[:4]...)

	return key, iv
}

func fixedBytes(v *big.Int, n int) []byte {
	out := make([]byte, n)
	v.FillBytes(out)

	return out
}

func putInt128(buf *mtwire.Buffer, v *big.Int) {
	buf.PutRaw(fixedBytes(v, 16))
}

func getInt128(buf *mtwire.Buffer) (*big.Int, error) {
	raw, err := buf.Raw(16)
	if err != nil {
		return nil, fmt.Errorf("authkey: truncated int128: %w", err)
	}

	return new(big.Int).SetBytes(raw), nil
}

func putInt256(buf *mtwire.Buffer, v *big.Int) {
	buf.PutRaw(fixedBytes(v, 32))
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v
}

func uint64ToBytes(v uint64) []byte {
	// Minimal big-endian representation, as MTProto expects for the
	// bignum-as-bytes encoding of p, q, pq.
	if v == 0 {
		return []byte{0}
	}

	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}

	i := 0
	for i < 7 && tmp[i] == 0 {
		i++
	}

	return tmp[i:]
}
