// Package entity implements §3's EntityCache: a per-account mapping from
// peer identifier to its resolved kind/access-hash/username/phone, kept
// up to date by walking every server payload that carries peer
// descriptions (§4.6 "EntityCache integration"). The cache is sharded by
// identifier hash, grounded on the teacher's OneOfOne/xxhash dependency —
// unused by any kept teacher file, so this is the home we give it.
package entity

import (
	"encoding/binary"
	"sync"

	"github.com/OneOfOne/xxhash"
)

// Kind is a PeerRef's category (§3).
type Kind int

const (
	KindUser Kind = iota
	KindChat
	KindChannel
)

// PeerRef identifies one peer: its kind, its 64-bit id, and an optional
// access hash (§3; chats of the small-group kind carry none).
type PeerRef struct {
	Kind       Kind
	ID         int64
	AccessHash int64
}

// Info is what the cache stores per identifier (§3 EntityCache).
type Info struct {
	Kind       Kind
	AccessHash int64
	Username   string
	Phone      string
}

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[int64]Info
}

// Cache is the sharded EntityCache. It is never shared across accounts
// (§3); callers create one per Account.
type Cache struct {
	shards [shardCount]*shard
}

// New creates an empty Cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[int64]Info)}
	}

	return c
}

func (c *Cache) shardFor(id int64) *shard {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(id))

	return c.shards[xxhash.Checksum64(key[:])%shardCount]
}

// Get looks up id, returning the stored Info and whether it was found.
func (c *Cache) Get(id int64) (Info, bool) {
	s := c.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.entries[id]

	return info, ok
}

// Put upserts id's Info (§3: "new/changed entries are upserted").
func (c *Cache) Put(id int64, info Info) {
	s := c.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = info
}

// Resolve looks up enough information to build an input peer for id: the
// stored Info plus the access hash, if the cache has it. Callers needing
// an access hash for a kind that requires one (§3) should treat a cache
// miss as "fall back to whole-chat resolution or fail", per §4.6.
func (c *Cache) Resolve(id int64) (PeerRef, bool) {
	info, ok := c.Get(id)
	if !ok {
		return PeerRef{}, false
	}

	return PeerRef{Kind: info.Kind, ID: id, AccessHash: info.AccessHash}, true
}
