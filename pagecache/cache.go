package pagecache

import "github.com/segmentio/memcache/segstore"

// variant is the capability both cache strategies implement. The Read
// Facade is written entirely against this interface and is agnostic to
// which variant backs it, per the design notes: "treat the cache as a
// polymorphic capability { get_or_create(va), flush(), close() }".
type variant interface {
	// read resolves the entry for the page starting at base (page-aligned)
	// and copies the bytes covering va into out, filling the page first if
	// necessary. skip, fileOffset and want describe where the page's bytes
	// live and how large its covered window is (bounded by its segment's
	// end); the LRU variant consults them whenever it creates an entry for
	// base on a miss, and the SegmentSized variant ignores them in favour of
	// the values it computed at construction.
	//
	// It returns the number of bytes copied and the page's effective size
	// after the read (0 once the page is known to be permanently short or
	// unmapped).
	read(store segstore.Store, base segstore.VA, skip int32, fileOffset int64, want int32, va segstore.VA, out []byte) (n int, effSize int32)

	// flush evicts every resident page, returning all buffers to the pool.
	flush()

	// close tears down any background resources (the SegmentSized
	// variant's trimmer) and flushes.
	close() error

	// stats reports the variant's view of hits/misses/page-outs.
	stats() variantStats
}

type variantStats struct {
	hits     int64
	misses   int64
	pageOuts int64
}

// Stats is a snapshot of the counters a Cache accumulates over its
// lifetime.
//
// All counters are absolute values accumulated since the cache was
// created; they are never reset automatically, not even by Flush.
type Stats struct {
	CacheID        string
	Hits           int64
	Misses         int64
	MultiPageReads int64
	UnalignedReads int64
	PageOuts       int64
}

// HitRate returns the hit rate of cache reads, as a floating point value
// between 0 and 1 inclusive. It returns 0 if there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
