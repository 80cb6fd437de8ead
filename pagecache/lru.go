package pagecache

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/dchest/siphash"

	"github.com/segmentio/memcache/cache"
	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/list"
	"github.com/segmentio/memcache/segstore"
)

// maxBuckets shards the fixed-count LRU cache across independent mutexes,
// so that concurrent access from multiple goroutines does not serialize on
// a single cache-wide lock. The count is a power of two so the compiler
// can fold the modulo into a mask if it chooses to.
const maxBuckets = 64

// lruCache is the fixed-page-count cache variant: an array of buckets,
// each an independent cache.LRU[VA, *entry] guarded by its own mutex plus
// a small free list of reusable entry objects.
//
// The bucket count scales with capacity rather than always being
// maxBuckets: a cache configured with only a handful of pages gains
// nothing from 64-way sharding, and sharding it anyway would turn the
// single configured capacity into up to 64 independent, much smaller
// capacities, breaking the "resident pages <= capacity" bound as a global
// property. Caches large enough to benefit from concurrency (capacity >=
// maxBuckets) get the full spread.
type lruCache struct {
	pool    *pagepool.Pool
	k0, k1  uint64 // siphash key, randomized per cache instance
	buckets []lruBucket
}

type lruBucket struct {
	mu       sync.Mutex
	capacity int
	lru      cache.LRU[segstore.VA, *entry]
	free     list.List // of *entry, chained via entry's embedded list.Node
	hits     int64
	misses   int64
	evicts   int64
}

func newLRUCache(capacity int64, pool *pagepool.Pool) *lruCache {
	if capacity < 1 {
		capacity = 1
	}

	nb := int64(maxBuckets)
	if capacity < nb {
		nb = 1
	}
	if capacity%nb != 0 {
		capacity = ((capacity / nb) + 1) * nb
	}
	perBucket := int(capacity / nb)

	c := &lruCache{pool: pool, buckets: make([]lruBucket, nb)}
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	c.k0 = binary.LittleEndian.Uint64(seed[:8])
	c.k1 = binary.LittleEndian.Uint64(seed[8:])

	for i := range c.buckets {
		c.buckets[i].capacity = perBucket
	}
	return c
}

func (c *lruCache) bucketOf(base segstore.VA) *lruBucket {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(base))
	// The hash must spread page addresses evenly across buckets
	// independently of locality in the address space; sequential page
	// addresses must not collide on the same bucket, or a single
	// sequential scan would serialize on one bucket's mutex.
	h := siphash.Hash(c.k0, c.k1, b[:])
	return &c.buckets[h%uint64(len(c.buckets))]
}

// read is a lookup that, on miss, either grows into an unused slot or
// evicts the bucket's least-recently-used entry and reuses its node, then
// fills (if necessary) and copies out the requested bytes.
func (c *lruCache) read(store segstore.Store, base segstore.VA, skip int32, fileOffset int64, want int32, va segstore.VA, out []byte) (n int, effSize int32) {
	e := c.getOrCreate(base, skip, fileOffset, want)
	n, effSize, _ = e.readAt(store, va, out, nil)
	return n, effSize
}

func (c *lruCache) getOrCreate(base segstore.VA, skip int32, fileOffset int64, want int32) *entry {
	b := c.bucketOf(base)

	b.mu.Lock()
	if e, ok := b.lru.Lookup(base); ok {
		b.hits++
		b.mu.Unlock()
		return e
	}
	b.misses++

	var e *entry
	if b.lru.Len() < b.capacity {
		// Still room to grow: pull from the free list before allocating,
		// but never evict a resident page just to avoid an allocation.
		if v := b.free.RemoveFront(); v != nil {
			e = v.(*entry)
		} else {
			e = newEntry(c.pool)
		}
	} else if _, evicted, ok := b.lru.Evict(); ok {
		e = evicted
		b.evicts++
	} else {
		e = newEntry(c.pool)
	}

	// Reusing an evicted node requires its write lock: a reader that is
	// still mid-copy against the page this node used to represent must
	// finish before we repurpose it, the same ordering requirement the
	// background trimmer observes before paging a page out.
	e.mu.Lock()
	e.reset(base, skip, fileOffset, want)
	e.mu.Unlock()

	b.lru.Insert(base, e)
	b.mu.Unlock()
	return e
}

func (c *lruCache) flush() {
	for i := range c.buckets {
		c.buckets[i].flush()
	}
}

func (b *lruBucket) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lru.Range(func(_ segstore.VA, e *entry) bool {
		e.mu.Lock()
		e.release()
		e.mu.Unlock()
		b.free.PushBack(e)
		return true
	})
	b.lru = cache.LRU[segstore.VA, *entry]{}
}

func (c *lruCache) close() error {
	c.flush()
	return nil
}

func (c *lruCache) stats() variantStats {
	var s variantStats
	for i := range c.buckets {
		b := &c.buckets[i]
		b.mu.Lock()
		s.hits += b.hits
		s.misses += b.misses
		s.pageOuts += b.evicts
		b.mu.Unlock()
	}
	return s
}
