package mtclient

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mtprotogo/core/session"
)

// authKeyAdapter satisfies dcmanager.AuthKeyStore on top of a
// session.Store. session.Store's LoadAuthKey/SaveAuthKey carry no salt
// (§4.7's persisted record is the 256-byte secret; the current server salt
// is renegotiated per-connection, §3), while dcmanager.AuthKeyStore needs
// one alongside the key so a restored key can seed mtproto.NewSession
// without a fresh AuthKey exchange. It packs the salt as 8 big-endian
// trailing bytes on the stored blob rather than adding a second store
// method, so memstore and sqlstore need no changes to serve both
// interfaces.
type authKeyAdapter struct {
	store session.Store
}

const saltSuffixLen = 8

func (a authKeyAdapter) LoadAuthKey(dcID int) ([]byte, uint64, bool, error) {
	blob, found, err := a.store.LoadAuthKey(context.Background(), dcID)
	if err != nil {
		return nil, 0, false, err
	}

	if !found {
		return nil, 0, false, nil
	}

	if len(blob) < saltSuffixLen {
		return nil, 0, false, fmt.Errorf("mtclient: stored auth key for dc %d is truncated", dcID)
	}

	key := blob[:len(blob)-saltSuffixLen]
	salt := binary.BigEndian.Uint64(blob[len(blob)-saltSuffixLen:])

	return key, salt, true, nil
}

func (a authKeyAdapter) SaveAuthKey(dcID int, key []byte, salt uint64) error {
	blob := make([]byte, len(key)+saltSuffixLen)
	copy(blob, key)
	binary.BigEndian.PutUint64(blob[len(key):], salt)

	return a.store.SaveAuthKey(context.Background(), dcID, blob)
}

func (a authKeyAdapter) ClearAuthKey(dcID int) error {
	return a.store.ClearAuthKey(context.Background(), dcID)
}
