package rpc

import (
	"sync"

	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/mtwire"
)

// Per §4.6 "RPC submission": the first request sent on a freshly connected
// Sender must be wrapped as invokeWithLayer(L, initConnection(api_id,
// device, os, version, lang, system_lang, proxy?, body)); every later
// request on that same connection is sent bare. These are well-known
// MTProto constructor ids (not schema-generated, hence owned by the core
// itself per §4.4's system-message catalogue).
const (
	ctorInvokeWithLayer = 0xda9b0d0d
	ctorInitConnection  = 0xc1cd5ea9
)

// LayerConfig carries the fields initConnection needs. It is supplied once
// at Client construction and reused for every DC's first request.
type LayerConfig struct {
	Layer           int32
	APIID           int32
	DeviceModel     string
	SystemVersion   string
	AppVersion      string
	SystemLangCode  string
	LangPack        string
	LangCode        string
}

// wrapFirstUse tracks, per live *mtproto.Sender, whether the
// connection-init wrapper has already been sent once. Keying by Sender
// pointer rather than DC id means a reconnect -- which always produces a
// brand new Sender (§3 "a new transport is opened... a new Session id is
// chosen") -- automatically needs re-wrapping without any explicit
// invalidation call: the server has no memory of a prior connection's
// negotiated parameters once its transport is gone.
type wrapFirstUse struct {
	mu      sync.Mutex
	wrapped map[*mtproto.Sender]bool
}

func newWrapFirstUse() *wrapFirstUse {
	return &wrapFirstUse{wrapped: make(map[*mtproto.Sender]bool)}
}

// needsWrap reports whether the next submission on sender must be
// wrapped, and marks it as wrapped going forward.
func (w *wrapFirstUse) needsWrap(sender *mtproto.Sender) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.wrapped[sender] {
		return false
	}

	w.wrapped[sender] = true

	return true
}

// wrapInitConnection boxes body in invokeWithLayer(initConnection(...)).
// flags is left at 0: no proxy info, no JSON params, matching the common
// case this core targets (§1 non-goal: proxying strategy beyond the
// connector hook).
func wrapInitConnection(cfg LayerConfig, body []byte) []byte {
	buf := mtwire.NewBuffer()

	buf.PutUint32(ctorInvokeWithLayer)
	buf.PutInt32(cfg.Layer)

	buf.PutUint32(ctorInitConnection)
	buf.PutUint32(0) // flags: no proxy, no params
	buf.PutInt32(cfg.APIID)
	buf.PutString(cfg.DeviceModel)
	buf.PutString(cfg.SystemVersion)
	buf.PutString(cfg.AppVersion)
	buf.PutString(cfg.SystemLangCode)
	buf.PutString(cfg.LangPack)
	buf.PutString(cfg.LangCode)
	buf.PutRaw(body)

	return buf.Bytes()
}
