package mtproto

import (
	"sync"
	"sync/atomic"

	"github.com/mtprotogo/core/crypto"
)

// Session holds the mutable per-transport state a Sender needs to encode
// and decode messages: the session id the server keys its message_ids
// against, the current salt (renegotiated by bad_server_salt and
// new_session_created, §4.4), and the seq_no counter.
//
// A fresh Session is created on every reconnect; the AuthorizationKey
// itself survives reconnects (it lives in the Session store, §4.7).
type Session struct {
	id int64

	mu       sync.Mutex
	salt     uint64
	seqNo    int32
	contentN int32

	acked atomic.Int64
}

// NewSession creates a Session with a random session id and the given
// initial salt (typically the one returned by the AuthKey exchange).
func NewSession(salt uint64) (*Session, error) {
	id, err := crypto.RandomUint64()
	if err != nil {
		return nil, err
	}

	return &Session{id: int64(id), salt: salt}, nil
}

// ID returns the session id.
func (s *Session) ID() int64 {
	return s.id
}

// Salt returns the current salt.
func (s *Session) Salt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.salt
}

// SetSalt replaces the current salt, as directed by bad_server_salt or
// new_session_created (§4.4).
func (s *Session) SetSalt(salt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.salt = salt
}

// NextSeqNo returns the seq_no for the next outgoing message and advances
// the counter. Content messages (those expecting an ack or a direct
// response) consume the odd half of the sequence space; non-content
// messages consume the even half, per the MTProto seq_no convention.
func (s *Session) NextSeqNo(content bool) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if content {
		s.contentN++
		v := s.contentN*2 - 1
		s.seqNo = v

		return v
	}

	v := s.contentN * 2
	s.seqNo = v

	return v
}
