// Package pagecache implements the paged random-access memory cache that
// sits between higher-level diagnostics code (heap walkers, type-system
// traversals, image parsers) and a raw backing store: a memory-mapped dump
// file or a live-process reader. Every higher-level query ultimately
// resolves to small, often-repeated, unaligned byte reads at arbitrary
// virtual addresses; this package is what keeps that I/O-bound.
//
// Cache exposes a single entry point, Read, decomposing an arbitrary
// virtual-address range into page-aligned chunks and routing each through
// one of two interchangeable strategies: a fixed-page-count LRU (see
// lru.go) or a byte-budget cache with a background trimmer (see
// segment_cache.go). Neither this package nor its cache variants interpret
// the bytes they move; that is left entirely to callers of Read and the
// typed helpers below.
package pagecache

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/segstore"
)

// Cache is the Read Facade: the public entry point combining a Backing
// Store, a Segment Map, and one of the two cache variants behind a single
// polymorphic capability.
//
// A Cache is safe for concurrent use by multiple goroutines, provided the
// backing Store's ReadAt is itself safe for concurrent calls: the Cache does
// not serialize store reads (FileStore built with threadSafe false serializes
// its own).
type Cache struct {
	id          string
	store       segstore.Store
	segments    *segstore.Map
	pageSize    int64
	pointerSize int
	v           variant

	multiPageReads int64
	unalignedReads int64
	closed         int32
}

// New constructs a Cache over the given store and segment map using
// DefaultConfig, as modified by options.
func New(store segstore.Store, segments *segstore.Map, options ...Option) (*Cache, error) {
	config := DefaultConfig()
	config.Apply(options...)
	return NewWithConfig(store, segments, config)
}

// NewWithConfig constructs a Cache from an explicit Config, such as one
// produced by LoadConfig.
func NewWithConfig(store segstore.Store, segments *segstore.Map, config *Config) (*Cache, error) {
	if config.PageSize <= 0 || config.PageSize&(config.PageSize-1) != 0 {
		return nil, ErrInvalidPageSize
	}
	if config.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	pointerSize := config.PointerSize
	if pointerSize == 0 {
		pointerSize = DefaultPointerSize
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	pool := pagepool.New(int(config.PageSize))

	c := &Cache{
		id:          uuid.NewString(),
		store:       store,
		segments:    segments,
		pageSize:    config.PageSize,
		pointerSize: pointerSize,
	}

	switch config.Variant {
	case LRU:
		c.v = newLRUCache(config.Capacity, pool)
	case SegmentSized:
		var mapped *segstore.MappedStore
		if config.UseOSMemoryFeatures {
			mapped, _ = store.(*segstore.MappedStore)
		}
		c.v = newSegmentCache(segments, config.PageSize, config.Capacity, pool, config.UseOSMemoryFeatures, mapped, log)
	default:
		return nil, ErrInvalidVariant
	}

	return c, nil
}

// PointerSize returns the configured pointer width, in bytes: 4 or 8.
func (c *Cache) PointerSize() int { return c.pointerSize }

// pageWindow resolves the page-aligned descriptor parameters covering va:
// the page base, the leading skip (non-zero only when the owning segment
// does not begin on a page boundary), the backing-store offset of the
// window, and its nominal length bounded by the segment's end. ok is false
// if no segment contains va.
func (c *Cache) pageWindow(va segstore.VA) (base segstore.VA, skip int32, fileOffset int64, want int32, ok bool) {
	seg, _, found := c.segments.Find(va)
	if !found {
		return 0, 0, 0, 0, false
	}
	base = floorToPage(va, c.pageSize)
	validStart := seg.Start
	if base > validStart {
		validStart = base
	}
	skip = int32(validStart.Sub(base))
	remaining := seg.End().Sub(validStart)
	w := c.pageSize - int64(skip)
	if w > remaining {
		w = remaining
	}
	return base, skip, seg.Offset(validStart), int32(w), true
}

// Read implements the Read Facade algorithm: it walks out across as many
// pages as needed to satisfy len(out), stopping early at the first
// unmapped address or permanently short page.
func (c *Cache) Read(va segstore.VA, out []byte) (int, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return 0, ErrClosed
	}
	if len(out) == 0 {
		return 0, nil
	}

	unaligned := uint64(va)%uint64(c.pageSize) != 0

	cursor := va
	written := 0
	pagesTouched := 0

	for written < len(out) {
		base, skip, fileOffset, want, ok := c.pageWindow(cursor)
		if !ok {
			break
		}
		pagesTouched++

		n, effSize := c.v.read(c.store, base, skip, fileOffset, want, cursor, out[written:])
		if n == 0 {
			_ = effSize
			break
		}
		written += n
		cursor = cursor.Add(int64(n))
	}

	if pagesTouched > 1 {
		atomic.AddInt64(&c.multiPageReads, 1)
	}
	if unaligned {
		atomic.AddInt64(&c.unalignedReads, 1)
	}

	return written, nil
}

// ReadString reads a NUL-terminated byte run starting at va, stopping at
// the first zero byte or after maxLen bytes, whichever comes first. The
// terminator itself is not included in the returned string. ok is false if
// no bytes at all could be read.
func (c *Cache) ReadString(va segstore.VA, maxLen int) (string, bool) {
	const chunkSize = 64

	buf := make([]byte, 0, chunkSize)
	scratch := make([]byte, chunkSize)
	cursor := va
	read := 0

	for read < maxLen {
		want := chunkSize
		if remaining := maxLen - read; remaining < want {
			want = remaining
		}
		n, _ := c.Read(cursor, scratch[:want])
		if n == 0 {
			break
		}
		if i := indexZero(scratch[:n]); i >= 0 {
			buf = append(buf, scratch[:i]...)
			return string(buf), true
		}
		buf = append(buf, scratch[:n]...)
		cursor = cursor.Add(int64(n))
		read += n
		if n < want {
			break
		}
	}

	if len(buf) == 0 {
		return "", false
	}
	return string(buf), true
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// Prefetch walks and materialises every page covering [start, start+length)
// without copying any bytes out, ahead of a bulk traversal that is about to
// need them. It stops at the first unmapped address or permanently short
// page, exactly as Read would.
func (c *Cache) Prefetch(start segstore.VA, length int64) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return
	}

	scratch := make([]byte, c.pageSize)
	cursor := start
	end := start.Add(length)

	for cursor < end {
		base, skip, fileOffset, want, ok := c.pageWindow(cursor)
		if !ok {
			return
		}
		n, _ := c.v.read(c.store, base, skip, fileOffset, want, cursor, scratch)
		if n == 0 {
			return
		}
		cursor = cursor.Add(int64(n))
	}
}

// ReadValue fills a sizeof(T)-byte scratch buffer via Read and reinterprets
// it as T in the platform's native layout. It returns ok=false unless the
// full sizeof(T) bytes were read. T is expected to be a fixed-layout value
// type (an integer, a struct of such), matching the plain-old-data
// assumption documented at the package level.
func ReadValue[T any](c *Cache, va segstore.VA) (T, bool) {
	var zero T
	size := int(unsafe.Sizeof(zero))

	var stack [64]byte
	var buf []byte
	if size <= len(stack) {
		buf = stack[:size]
	} else {
		buf = make([]byte, size)
	}

	n, err := c.Read(va, buf)
	if err != nil || n != size {
		return zero, false
	}
	return *(*T)(unsafe.Pointer(&buf[0])), true
}

// ReadPointer reads a pointer-sized value at va and widens it to a uint64.
// A VA of zero short-circuits as a failed read with a zero-valued result,
// per the null-pointer convention of the diagnostics readers this package
// serves.
func (c *Cache) ReadPointer(va segstore.VA) (uint64, bool) {
	if va == 0 {
		return 0, false
	}

	var buf [8]byte
	n, err := c.Read(va, buf[:c.pointerSize])
	if err != nil || n != c.pointerSize {
		return 0, false
	}
	if c.pointerSize == 4 {
		return uint64(binary.LittleEndian.Uint32(buf[:4])), true
	}
	return binary.LittleEndian.Uint64(buf[:8]), true
}

// Flush evicts every resident page, returning their buffers to the pool.
// Counters are left untouched; call Stats before Flush if a snapshot of
// pre-flush activity is wanted.
func (c *Cache) Flush() {
	c.v.flush()
}

// Stats returns a snapshot of the cache's counters, accumulated since
// construction (Flush does not reset them).
func (c *Cache) Stats() Stats {
	vs := c.v.stats()
	return Stats{
		CacheID:        c.id,
		Hits:           vs.hits,
		Misses:         vs.misses,
		MultiPageReads: atomic.LoadInt64(&c.multiPageReads),
		UnalignedReads: atomic.LoadInt64(&c.unalignedReads),
		PageOuts:       vs.pageOuts,
	}
}

// Close shuts down any background resources (the SegmentSized variant's
// trimmer) and releases all buffers to the pool. The cache must not be
// read after Close; Read returns ErrClosed.
func (c *Cache) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.v.close()
}
