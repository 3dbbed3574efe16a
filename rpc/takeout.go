package rpc

import "github.com/mtprotogo/core/mtwire"

// ctorInvokeWithTakeout is invokeWithTakeout#aca9fd2e, the wrapper a DC's
// active takeout session (dcmanager.Manager.BeginTakeout) boxes every
// subsequent RPC in, the session-scoped generalization of invokeWithLayer's
// one-shot first-use wrap (§1, §4.6).
const ctorInvokeWithTakeout = 0xaca9fd2e

// wrapTakeout boxes body in invokeWithTakeout(takeoutID, body).
func wrapTakeout(takeoutID int64, body []byte) []byte {
	buf := mtwire.NewBuffer()

	buf.PutUint32(ctorInvokeWithTakeout)
	buf.PutInt64(takeoutID)
	buf.PutRaw(body)

	return buf.Bytes()
}
