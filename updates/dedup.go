// Package updates implements §4.6's updates pipeline: pts/qts gap
// detection against getDifference, a short buffer-and-wait for updates
// that arrive out of order, a fast-path duplicate filter, and ordered
// per-channel delivery to subscribers. It has no single teacher
// equivalent, but is built entirely from pack pieces: the stable bloom
// filter of antireplay/stable_bloom_filter_metrics.go, and the
// ants.PoolWithFunc worker pool of mtglib/proxy.go.
package updates

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	boom "github.com/tylertreat/BoomFilters"
)

// Default sizing mirrors antireplay's stable bloom filter: 1 MB of memory
// at a 1% false positive rate is enough headroom for a single account's
// update stream, which is orders of magnitude lower-volume than the proxy
// traffic antireplay was sized for.
const (
	DefaultDedupMaxSize   = 1024 * 1024
	DefaultDedupErrorRate = 0.01
)

// Dedup is a fast-path duplicate check ahead of the authoritative pts
// comparison (§4.6): the same update can arrive twice, once pushed live
// and once replayed by getDifference after a gap closes, and re-applying
// it would double-deliver to subscribers. Grounded directly on
// antireplay's stableBloomFilterWithMetrics, repurposed from "seen TLS
// client hello" to "already-applied update".
type Dedup struct {
	mu     sync.Mutex
	filter boom.StableBloomFilter
}

// NewDedup creates a Dedup with byteSize bytes of backing memory (0 for
// the default) and errorRate false-positive rate (<=0 for the default).
func NewDedup(byteSize uint, errorRate float64) *Dedup {
	if byteSize == 0 {
		byteSize = DefaultDedupMaxSize
	}

	if errorRate <= 0 {
		errorRate = DefaultDedupErrorRate
	}

	sf := boom.NewDefaultStableBloomFilter(byteSize*8, errorRate) //nolint: gomnd
	sf.SetHash(xxhash.New64())

	return &Dedup{filter: *sf}
}

// SeenBefore reports whether digest was already recorded, recording it if
// not.
func (d *Dedup) SeenBefore(digest []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.filter.TestAndAdd(digest)
}
