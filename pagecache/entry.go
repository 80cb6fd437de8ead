package pagecache

import (
	"sync"
	"sync/atomic"

	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/list"
	"github.com/segmentio/memcache/segstore"
)

// entry is a single cache page: the unit the LRU and segment-sized variants
// both manage, and the type the Read Facade fills and copies out of.
//
// Each entry owns a reader-writer lock. Readers that find the page resident
// only ever take the read lock (the hot path); materializing or discarding
// the buffer requires the write lock. This is what lets concurrent readers
// of distinct, and even the same, resident page proceed without contending
// on anything coarser than the page itself.
type entry struct {
	mu sync.RWMutex

	base       segstore.VA // page-aligned; immutable for the entry's current residency
	skip       int32       // bytes of the nominal page before the segment's own coverage begins
	fileOffset int64       // backing-store offset corresponding to base+skip
	want       int32       // nominal length of the covered window, bounded by the owning segment's end
	filled     bool        // true once a fill attempt (successful or not) has run
	size       int32       // effective length once filled; 0 means permanently empty
	buf        []byte      // nil until filled; length == size

	pool *pagepool.Pool

	// next chains pages within the same segment for the SegmentSized
	// variant; the chain is built at construction. The read path does not
	// follow it: every page of a multi-page read is looked up by its page
	// base. Unused by the LRU variant.
	next *entry

	// age is the last-access stamp used by the SegmentSized variant's
	// two-pass trimmer. Unused by the LRU variant, which tracks recency
	// via its own doubly-linked list instead.
	age uint64

	// This embedded node lets the LRU variant chain retired entries through the
	// intrusive list package instead of a slice, so returning an entry to
	// the free list never grows a backing array. Unused by the
	// SegmentSized variant, whose descriptors are never freed, only paged
	// out in place.
	_ list.Node
}

func newEntry(pool *pagepool.Pool) *entry {
	return &entry{pool: pool}
}

// reset prepares an entry to represent a different page. The caller must
// hold e.mu for writing and must guarantee no other goroutine still holds a
// reference to this entry under the page it used to represent — in
// practice this means reset is only called either on a freshly allocated
// entry, or on one just removed from whatever index (LRU map, segment
// table) made it reachable.
func (e *entry) reset(base segstore.VA, skip int32, fileOffset int64, want int32) {
	if e.buf != nil {
		e.pool.Put(e.buf)
	}
	e.base = base
	e.skip = skip
	e.fileOffset = fileOffset
	e.want = want
	e.filled = false
	e.size = 0
	e.buf = nil
	e.next = nil
}

// release returns the entry's buffer (if any) to the pool and marks the
// entry empty, without touching its identity (base/fileOffset/want). The
// caller must hold e.mu for writing. Used by the SegmentSized variant's
// trimmer to page out a resident entry while leaving its descriptor (and
// its position in the segment chain) in place.
func (e *entry) release() (freed int) {
	if e.buf != nil {
		freed = len(e.buf)
		e.pool.Put(e.buf)
		e.buf = nil
	}
	e.filled = false
	e.size = 0
	return freed
}

func (e *entry) resident() bool {
	e.mu.RLock()
	r := e.filled && e.buf != nil
	e.mu.RUnlock()
	return r
}

// fill performs the slow-path page materialisation described in the page
// cache's read protocol: rent a buffer, read through to the backing store,
// and shrink the effective size on a short read. The caller must hold e.mu
// for writing and must have already checked that e.filled is false.
func (e *entry) fill(store segstore.Store) {
	buf := e.pool.Get()[:e.want]
	n, _ := store.ReadAt(e.fileOffset, buf)
	if n <= 0 {
		e.pool.Put(buf)
		e.buf = nil
		e.size = 0
	} else {
		e.buf = buf[:n]
		e.size = int32(n)
	}
	e.filled = true
}

// readAt copies into out the bytes of this page starting at va, which must
// satisfy base <= va < base+skip+want; a va below base+skip yields no bytes.
// It returns the number of bytes copied and the entry's effective size after
// the read (0 once the page is known to be permanently short or empty).
// onAccess, if non-nil, is invoked once per call, after the copy, on both the
// fast and the slow path (fast-path hits included); it is not invoked when va
// falls below base+skip.
func (e *entry) readAt(store segstore.Store, va segstore.VA, out []byte, onAccess func()) (n int, effSize int32, filledNow bool) {
	off := int(va.Sub(e.base)) - int(e.skip)
	if off < 0 {
		// va falls in the leading portion of this page that precedes the
		// segment's own coverage (only possible when a segment does not
		// begin on a page boundary): there are no bytes here.
		return 0, 0, false
	}

	e.mu.RLock()
	if e.filled {
		n, effSize = e.copyLocked(off, out)
		e.mu.RUnlock()
		if onAccess != nil {
			onAccess()
		}
		return n, effSize, false
	}
	e.mu.RUnlock()

	e.mu.Lock()
	if !e.filled {
		e.fill(store)
		filledNow = true
	}
	n, effSize = e.copyLocked(off, out)
	e.mu.Unlock()

	if onAccess != nil {
		onAccess()
	}
	return n, effSize, filledNow
}

// copyLocked implements the byte-copy step shared by both readAt paths. The
// caller must hold e.mu (either for reading or writing).
func (e *entry) copyLocked(off int, out []byte) (n int, effSize int32) {
	avail := int(e.size) - off
	if avail < 0 {
		avail = 0
	}
	n = avail
	if n > len(out) {
		n = len(out)
	}
	if n > 0 {
		copy(out, e.buf[off:off+n])
	}
	return n, e.size
}

func (e *entry) touchAge(current *uint64) {
	atomic.StoreUint64(&e.age, atomic.LoadUint64(current))
}

func (e *entry) loadAge() uint64 {
	return atomic.LoadUint64(&e.age)
}
