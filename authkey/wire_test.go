package authkey

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/mtwire"
)

func TestEncodeReqPQMultiAndDecodeResPQ(t *testing.T) {
	nonce, err := bigFromDecimal("170141183460469231731687303715884105727")
	require.NoError(t, err)

	frame := encodeReqPQMulti(nonce)
	require.NotEmpty(t, frame)

	buf := mtwire.NewBufferFrom(frame)
	ctor, err := buf.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(ctorReqPQMulti), ctor)

	echoed, err := getInt128(buf)
	require.NoError(t, err)
	require.Equal(t, 0, nonce.Cmp(echoed))

	serverNonce, err := bigFromDecimal("5")
	require.NoError(t, err)

	resp := mtwire.NewBuffer()
	resp.PutUint32(ctorResPQ)
	putInt128(resp, nonce)
	putInt128(resp, serverNonce)
	resp.PutBytes(uint64ToBytes(1724114033281923457))
	resp.PutVectorHeader(1)
	resp.PutInt64(int64(0x0123456789abcdef))

	decoded, err := decodeResPQ(resp.Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, nonce.Cmp(decoded.Nonce))
	require.Equal(t, 0, serverNonce.Cmp(decoded.ServerNonce))
	require.Equal(t, uint64(1724114033281923457), decoded.PQ)
	require.Equal(t, []uint64{0x0123456789abcdef}, decoded.Fingerprints)
}

func TestDecodeResPQRejectsWrongConstructor(t *testing.T) {
	buf := mtwire.NewBuffer()
	buf.PutUint32(0xdeadbeef)

	_, err := decodeResPQ(buf.Bytes())
	require.Error(t, err)
}

func TestEncodePQInnerDataRoundTrip(t *testing.T) {
	nC := big.NewInt(1)
	serverNonce := big.NewInt(2)
	newNonce := big.NewInt(3)

	frame := encodePQInnerData(15, 3, 5, nC, serverNonce, newNonce)

	buf := mtwire.NewBufferFrom(frame)
	ctor, err := buf.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(ctorPQInnerData), ctor)

	pqBytes, err := buf.DecodeBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(15), bytesToUint64(pqBytes))
}

func TestSetClientDHParamsEncryptsPayload(t *testing.T) {
	nC := big.NewInt(11)
	serverNonce := big.NewInt(22)
	newNonce := big.NewInt(33)
	gB := big.NewInt(44)

	frame, err := encodeSetClientDHParams(nC, serverNonce, newNonce, gB, 0)
	require.NoError(t, err)

	buf := mtwire.NewBufferFrom(frame)
	ctor, err := buf.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(ctorSetClientDHParams), ctor)

	ciphertext, err := buf.DecodeBytes()
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.Equal(t, 0, len(ciphertext)%16)
}

func TestDecodeDHGenAckKinds(t *testing.T) {
	nC := big.NewInt(1)
	serverNonce := big.NewInt(2)
	newNonce := big.NewInt(3)
	secret := big.NewInt(4)

	for ctor, want := range map[uint32]dhGenResult{
		ctorDHGenOK:    dhGenOK,
		ctorDHGenRetry: dhGenRetry,
		ctorDHGenFail:  dhGenFail,
	} {
		buf := mtwire.NewBuffer()
		buf.PutUint32(ctor)
		putInt128(buf, nC)
		putInt128(buf, serverNonce)

		got, err := decodeDHGenAck(buf.Bytes(), nC, serverNonce, newNonce, secret)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestTmpAESKeyIVLengths(t *testing.T) {
	newNonce := big.NewInt(123456789)
	serverNonce := big.NewInt(987654321)

	key, iv := tmpAESKeyIV(newNonce, serverNonce)
	require.Len(t, key, 32)
	require.Len(t, iv, 32)
}

func bigFromDecimal(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errNotANumber
	}

	return v, nil
}

var errNotANumber = &notANumberError{}

type notANumberError struct{}

func (e *notANumberError) Error() string { return "authkey: not a valid decimal number in test fixture" }
