package entity

import (
	"github.com/mtprotogo/core/schema"
)

// Extractor pulls every peer description embedded in obj, e.g. the
// `user`/`chat`/`channel` constructors nested in an `updates` container or
// an RPC reply's `users`/`chats` vectors. It is caller-supplied because
// walking a concrete payload is a generated-schema concern (§6); the core
// only knows Object by its ConstructorID (§9 "dynamic dispatch over
// schema types"), the same extension-point shape as rpc.Dispatcher's
// UpdatesHandler and dcmanager's AuthTransfer hook.
type Extractor func(obj schema.Object) []PeerRef

// Walker upserts every peer an Extractor finds in a payload into a Cache
// (§4.6 "every payload... is walked for embedded peer descriptions").
type Walker struct {
	cache     *Cache
	extractor Extractor
}

// NewWalker creates a Walker writing into cache via extractor. extractor
// may be nil, in which case Observe is a no-op — useful before the
// generated-schema layer has registered one.
func NewWalker(cache *Cache, extractor Extractor) *Walker {
	return &Walker{cache: cache, extractor: extractor}
}

// Observe extracts and upserts every peer found in obj.
func (w *Walker) Observe(obj schema.Object) {
	if w.extractor == nil || obj == nil {
		return
	}

	for _, ref := range w.extractor(obj) {
		w.cache.Put(ref.ID, Info{Kind: ref.Kind, AccessHash: ref.AccessHash})
	}
}
