package mtproto

import (
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/crypto"
	"github.com/mtprotogo/core/mtwire"
)

func fixedAuthKey() []byte {
	key := make([]byte, 256)
	for i := range key {
		key[i] = byte(i)
	}

	return key
}

// encodeServerDirection builds a frame the way a real Telegram server
// would for a message flowing server->client, the direction DecodeMessage
// expects of anything it reads off the wire.
func encodeServerDirection(t *testing.T, authKey []byte, salt uint64, sessionID, msgID int64, seqNo int32, body []byte) []byte {
	t.Helper()

	inner := mtwire.NewBuffer()
	inner.PutUint64(salt)
	inner.PutInt64(sessionID)
	inner.PutInt64(msgID)
	inner.PutInt32(seqNo)
	inner.PutInt32(int32(len(body)))
	inner.PutRaw(body)

	plain := inner.Bytes()

	padLen := minPadding + (alignment-(len(plain)+minPadding)%alignment)%alignment

	padding := make([]byte, padLen)
	_, err := rand.Read(padding)
	require.NoError(t, err)

	plain = append(plain, padding...)

	msgKey, err := crypto.MsgKey(authKey, crypto.DirectionServerToClient, plain)
	require.NoError(t, err)

	aesKey, aesIV, err := crypto.DeriveAESKeyIV(authKey, msgKey, crypto.DirectionServerToClient)
	require.NoError(t, err)

	ciphertext, err := crypto.IGEEncrypt(aesKey, aesIV, plain)
	require.NoError(t, err)

	out := mtwire.NewBuffer()
	out.PutUint64(crypto.AuthKeyID(authKey))
	out.PutRaw(msgKey)
	out.PutRaw(ciphertext)

	return out.Bytes()
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	authKey := fixedAuthKey()
	body := []byte("hello, mtproto")

	frame := encodeServerDirection(t, authKey, 0xdeadbeefcafebabe, 12345, 100, 1, body)

	decoded, err := DecodeMessage(authKey, frame)
	require.NoError(t, err)
	require.Equal(t, int64(12345), decoded.SessionID)
	require.Equal(t, int64(100), decoded.MsgID)
	require.Equal(t, body, decoded.Body)
}

func TestDecodeMessageRejectsTamperedFrame(t *testing.T) {
	authKey := fixedAuthKey()
	frame := encodeServerDirection(t, authKey, 1, 1, 1, 1, []byte("abc"))

	frame[len(frame)-1] ^= 0xff

	_, err := DecodeMessage(authKey, frame)
	require.Error(t, err)
}

func TestEncodeMessageProducesClientDirectionFrame(t *testing.T) {
	authKey := fixedAuthKey()

	frame, err := EncodeMessage(authKey, 1, 2, 3, 1, []byte("abc"))
	require.NoError(t, err)
	require.Greater(t, len(frame), 16)
}

type fakeConn struct {
	net.Conn
}

func (f *fakeConn) Send(b []byte) error {
	_, err := f.Conn.Write(b)
	return err
}

func (f *fakeConn) Recv() ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := f.Conn.Read(buf)

	return buf[:n], err
}

func (f *fakeConn) Close() error { return f.Conn.Close() }

func (f *fakeConn) RemoteAddr() net.Addr { return f.Conn.RemoteAddr() }

type recordingHandler struct {
	acked   [][]int64
	salt    uint64
	updates [][]byte
}

func (r *recordingHandler) OnMsgsAck(ids []int64)                          { r.acked = append(r.acked, ids) }
func (r *recordingHandler) OnBadServerSalt(badMsgID int64, newSalt uint64) { r.salt = newSalt }
func (r *recordingHandler) OnBadMsgNotification(badMsgID int64, code int32) {
}

func (r *recordingHandler) OnNewSessionCreated(firstMsgID, uniqueID int64, salt uint64) {
	r.salt = salt
}
func (r *recordingHandler) OnRPCResult(reqMsgID int64, payload []byte) {}
func (r *recordingHandler) OnPong(pingID int64)                        {}
func (r *recordingHandler) OnUpdates(payload []byte)                   { r.updates = append(r.updates, payload) }
func (r *recordingHandler) OnUnknown(constructorID uint32, payload []byte) {
}

func TestSenderSendProducesFrameOnTransport(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	authKey := fixedAuthKey()
	session, err := NewSession(111)
	require.NoError(t, err)

	sender := New(&fakeConn{Conn: client}, authKey, session, &recordingHandler{}, nil)

	done := make(chan []byte, 1)

	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	_, err = sender.Send([]byte("ping"))
	require.NoError(t, err)

	select {
	case frame := <-done:
		require.Greater(t, len(frame), 16)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestDispatchMsgsAck(t *testing.T) {
	authKey := fixedAuthKey()
	session, err := NewSession(1)
	require.NoError(t, err)

	handler := &recordingHandler{}
	sender := New(nil, authKey, session, handler, nil)

	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorMsgsAck)
	buf.PutVectorHeader(2)
	buf.PutInt64(10)
	buf.PutInt64(20)

	require.NoError(t, sender.Dispatch(0, buf.Bytes()))
	require.Equal(t, [][]int64{{10, 20}}, handler.acked)
}

func TestDispatchBadServerSaltUpdatesSession(t *testing.T) {
	authKey := fixedAuthKey()
	session, err := NewSession(1)
	require.NoError(t, err)

	handler := &recordingHandler{}
	sender := New(nil, authKey, session, handler, nil)

	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorBadServerSalt)
	buf.PutInt64(99)
	buf.PutInt32(1)
	buf.PutInt32(48)
	buf.PutUint64(777)

	require.NoError(t, sender.Dispatch(0, buf.Bytes()))
	require.Equal(t, uint64(777), session.Salt())
	require.Equal(t, uint64(777), handler.salt)
}

func TestDispatchMsgContainerRecurses(t *testing.T) {
	authKey := fixedAuthKey()
	session, err := NewSession(1)
	require.NoError(t, err)

	handler := &recordingHandler{}
	sender := New(nil, authKey, session, handler, nil)

	inner := mtwire.NewBuffer()
	inner.PutUint32(ctorMsgsAck)
	inner.PutVectorHeader(1)
	inner.PutInt64(5)

	outer := mtwire.NewBuffer()
	outer.PutUint32(ctorMsgContainer)
	outer.PutInt32(1)
	outer.PutInt64(123)
	outer.PutInt32(0)
	outer.PutInt32(int32(len(inner.Bytes())))
	outer.PutRaw(inner.Bytes())

	require.NoError(t, sender.Dispatch(0, outer.Bytes()))
	require.Equal(t, [][]int64{{5}}, handler.acked)
}
