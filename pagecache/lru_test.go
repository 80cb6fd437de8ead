package pagecache

import (
	"testing"

	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/segstore"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// Force every page into a single bucket so eviction order is
	// deterministic and independent of the siphash shard assignment: use
	// a capacity small enough that rounding still leaves one page per
	// bucket, then exercise one bucket directly.
	pool := pagepool.New(0x1000)
	c := newLRUCache(maxBuckets, pool) // 1 page per bucket after rounding
	b := &c.buckets[0]
	b.capacity = 2

	store := patternStore(0x3000)

	get := func(base segstore.VA) *entry {
		b.mu.Lock()
		if e, ok := b.lru.Lookup(base); ok {
			b.mu.Unlock()
			return e
		}
		b.mu.Unlock()

		b.mu.Lock()
		var e *entry
		if b.lru.Len() < b.capacity {
			if v := b.free.RemoveFront(); v != nil {
				e = v.(*entry)
			} else {
				e = newEntry(pool)
			}
		} else if _, evicted, ok := b.lru.Evict(); ok {
			e = evicted
		} else {
			e = newEntry(pool)
		}
		e.mu.Lock()
		e.reset(base, 0, int64(base), 0x1000)
		e.mu.Unlock()
		b.lru.Insert(base, e)
		b.mu.Unlock()
		return e
	}

	get(0x0000)
	get(0x1000)
	get(0x0000) // touch 0x0000 again: 0x1000 is now the LRU tail
	third := get(0x2000)

	if _, ok := b.lru.Lookup(0x1000); ok {
		t.Error("expected 0x1000 to have been evicted")
	}
	if _, ok := b.lru.Lookup(0x0000); !ok {
		t.Error("expected 0x0000 to survive (recently touched)")
	}
	if third.base != 0x2000 {
		t.Errorf("third.base = %#x, want 0x2000", third.base)
	}
	_ = store
}

func TestLRUCacheReadHitsAndMisses(t *testing.T) {
	pool := pagepool.New(0x1000)
	c := newLRUCache(256, pool)
	store := patternStore(0x4000)

	out := make([]byte, 4)
	n, effSize := c.read(store, 0x1000, 0, 0x1000, 0x1000, 0x1004, out)
	if n != 4 || effSize != 0x1000 {
		t.Fatalf("first read: n=%d effSize=%d", n, effSize)
	}

	n, effSize = c.read(store, 0x1000, 0, 0x1000, 0x1000, 0x1004, out)
	if n != 4 || effSize != 0x1000 {
		t.Fatalf("second read: n=%d effSize=%d", n, effSize)
	}

	s := c.stats()
	if s.misses != 1 {
		t.Errorf("misses = %d, want 1", s.misses)
	}
}

func TestLRUCacheFlushReturnsBuffersAndResets(t *testing.T) {
	pool := pagepool.New(0x1000)
	c := newLRUCache(maxBuckets, pool)
	store := patternStore(0x1000)

	out := make([]byte, 4)
	c.read(store, 0, 0, 0, 0x1000, 0, out)

	before := pool.Stats()
	c.flush()
	after := pool.Stats()

	if after.Frees <= before.Frees {
		t.Errorf("Frees did not increase across flush: before=%d after=%d", before.Frees, after.Frees)
	}

	var total int
	for i := range c.buckets {
		total += c.buckets[i].lru.Len()
	}
	if total != 0 {
		t.Errorf("expected all buckets empty after flush, got %d resident", total)
	}
}
