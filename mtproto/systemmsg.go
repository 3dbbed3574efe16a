package mtproto

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/mtprotogo/core/mtwire"
)

// System message constructor ids (§4.4). These, like the AuthKey
// exchange's own constants, are owned by the core rather than the
// generated schema catalogue: the sender must recognize them before any
// application-level rpc_result payload can even be located.
const (
	ctorMsgContainer       = 0x73f1f8dc
	ctorGzipPacked         = 0x3072cfa1
	ctorMsgsAck            = 0x62d6b459
	ctorBadServerSalt      = 0xedab447b
	ctorBadMsgNotification = 0xa7eff811
	ctorNewSessionCreated  = 0x9ec20908
	ctorPong               = 0x347773c5
	ctorRPCResult          = 0xf35c6d01
	ctorRPCError           = 0x2144ca19

	ctorUpdates                = 0x74ae4240
	ctorUpdatesCombined        = 0x725b04c3
	ctorUpdateShort            = 0x78d4dec1
	ctorUpdateShortMessage     = 0x313bc7f8
	ctorUpdateShortChatMessage = 0x4d6deea5
	ctorUpdateShortSentMessage = 0x11f1331c
)

func (s *Sender) dispatchContainer(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil { // constructor
		return err
	}

	n, err := buf.Int32()
	if err != nil {
		return err
	}

	for i := int32(0); i < n; i++ {
		innerMsgID, err := buf.Int64()
		if err != nil {
			return err
		}

		if _, err := buf.Int32(); err != nil { // seqno, informational only here
			return err
		}

		length, err := buf.Int32()
		if err != nil {
			return err
		}

		inner, err := buf.Raw(int(length))
		if err != nil {
			return fmt.Errorf("mtproto: truncated msg_container entry: %w", err)
		}

		if err := s.Dispatch(innerMsgID, inner); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sender) dispatchGzipPacked(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	packed, err := buf.DecodeBytes()
	if err != nil {
		return err
	}

	reader, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return fmt.Errorf("mtproto: cannot open gzip_packed payload: %w", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("mtproto: cannot decompress gzip_packed payload: %w", err)
	}

	return s.Dispatch(0, decompressed)
}

func (s *Sender) dispatchMsgsAck(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	n, err := buf.VectorHeader()
	if err != nil {
		return err
	}

	ids := make([]int64, n)

	for i := 0; i < n; i++ {
		id, err := buf.Int64()
		if err != nil {
			return err
		}

		ids[i] = id
	}

	s.handler.OnMsgsAck(ids)

	return nil
}

func (s *Sender) dispatchBadServerSalt(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	badMsgID, err := buf.Int64()
	if err != nil {
		return err
	}

	if _, err := buf.Int32(); err != nil { // bad_msg_seqno
		return err
	}

	if _, err := buf.Int32(); err != nil { // error_code
		return err
	}

	newSalt, err := buf.Uint64()
	if err != nil {
		return err
	}

	s.session.SetSalt(newSalt)
	s.handler.OnBadServerSalt(badMsgID, newSalt)

	return nil
}

func (s *Sender) dispatchBadMsgNotification(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	badMsgID, err := buf.Int64()
	if err != nil {
		return err
	}

	if _, err := buf.Int32(); err != nil { // bad_msg_seqno
		return err
	}

	code, err := buf.Int32()
	if err != nil {
		return err
	}

	s.handler.OnBadMsgNotification(badMsgID, code)

	return nil
}

func (s *Sender) dispatchNewSessionCreated(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	firstMsgID, err := buf.Int64()
	if err != nil {
		return err
	}

	uniqueID, err := buf.Int64()
	if err != nil {
		return err
	}

	salt, err := buf.Uint64()
	if err != nil {
		return err
	}

	s.session.SetSalt(salt)
	s.handler.OnNewSessionCreated(firstMsgID, uniqueID, salt)

	return nil
}

func (s *Sender) dispatchPong(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	if _, err := buf.Int64(); err != nil { // msg_id of the ping request
		return err
	}

	pingID, err := buf.Int64()
	if err != nil {
		return err
	}

	s.handler.OnPong(pingID)

	return nil
}

func (s *Sender) dispatchRPCResult(buf *mtwire.Buffer) error {
	if _, err := buf.Uint32(); err != nil {
		return err
	}

	reqMsgID, err := buf.Int64()
	if err != nil {
		return err
	}

	payload, err := buf.Raw(buf.Remaining())
	if err != nil {
		return err
	}

	s.handler.OnRPCResult(reqMsgID, payload)

	return nil
}
