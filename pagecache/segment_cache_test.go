package pagecache

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/segstore"
)

func buildSegments(t *testing.T, segs ...segstore.Segment) *segstore.Map {
	t.Helper()
	var m segstore.Map
	for _, s := range segs {
		if err := m.Insert(s); err != nil {
			t.Fatal(err)
		}
	}
	return &m
}

func TestSegmentCacheConstructionChainsPagesWithinSegment(t *testing.T) {
	segs := buildSegments(t, segstore.Segment{Start: 0, Length: 0x3000, FileOffset: 0})
	pool := pagepool.New(0x1000)

	sc := newSegmentCache(segs, 0x1000, 0x10000, pool, false, nil, zap.NewNop().Sugar())
	defer sc.close()

	if len(sc.order) != 3 {
		t.Fatalf("got %d page descriptors, want 3", len(sc.order))
	}
	if sc.order[0].next != sc.order[1] || sc.order[1].next != sc.order[2] {
		t.Error("expected pages within the same segment to be chained via next")
	}
	if sc.order[2].next != nil {
		t.Error("expected the last page of a segment to terminate its chain")
	}
}

func TestSegmentCacheFirstInsertedWinsAtPageCollision(t *testing.T) {
	// Two contiguous, non-overlapping segments that both round down to
	// page base 0x1000: A covers [0x1004, 0x1008), B covers [0x1008,
	// 0x1010). Per the first-inserted rule, A's descriptor owns that
	// page and B gets no descriptor of its own.
	segs := buildSegments(t,
		segstore.Segment{Start: 0x1004, Length: 0x4, FileOffset: 0x5000},
		segstore.Segment{Start: 0x1008, Length: 0x8, FileOffset: 0x9000},
	)
	pool := pagepool.New(0x1000)
	sc := newSegmentCache(segs, 0x1000, 0x10000, pool, false, nil, zap.NewNop().Sugar())
	defer sc.close()

	if len(sc.order) != 1 {
		t.Fatalf("got %d page descriptors, want 1 (both segments share page 0x1000)", len(sc.order))
	}

	e := sc.entryAt(0x1000)
	if e == nil {
		t.Fatal("expected a descriptor for page base 0x1000")
	}
	if e.fileOffset != 0x5000 {
		t.Errorf("fileOffset = %#x, want 0x5000 (first-inserted segment A wins)", e.fileOffset)
	}
	if e.skip != 4 {
		t.Errorf("skip = %d, want 4", e.skip)
	}
}

func TestSegmentCacheReadHitsAndMisses(t *testing.T) {
	segs := buildSegments(t, segstore.Segment{Start: 0, Length: 0x2000, FileOffset: 0})
	pool := pagepool.New(0x1000)
	store := patternStore(0x2000)

	sc := newSegmentCache(segs, 0x1000, 0x10000, pool, false, nil, zap.NewNop().Sugar())
	defer sc.close()

	out := make([]byte, 4)
	n, effSize := sc.read(store, 0, 0, 0, 0x1000, 0x10, out)
	if n != 4 || effSize != 0x1000 {
		t.Fatalf("n=%d effSize=%d", n, effSize)
	}
	n, effSize = sc.read(store, 0, 0, 0, 0x1000, 0x10, out)
	if n != 4 || effSize != 0x1000 {
		t.Fatalf("second read: n=%d effSize=%d", n, effSize)
	}

	s := sc.stats()
	if s.misses != 1 || s.hits != 1 {
		t.Errorf("hits=%d misses=%d, want 1,1", s.hits, s.misses)
	}
}

func TestSegmentCacheTrimReducesResidentBytes(t *testing.T) {
	// A small budget relative to the page size forces a trim cycle once
	// a handful of pages have been materialised.
	const pageSize = 0x100
	const numPages = 16
	segs := buildSegments(t, segstore.Segment{Start: 0, Length: pageSize * numPages, FileOffset: 0})
	pool := pagepool.New(pageSize)
	store := patternStore(pageSize * numPages)

	maxBytes := int64(pageSize * 4)
	sc := newSegmentCache(segs, pageSize, maxBytes, pool, false, nil, zap.NewNop().Sugar())
	defer sc.close()

	out := make([]byte, 4)
	for i := 0; i < numPages; i++ {
		base := segstore.VA(i * pageSize)
		sc.read(store, base, 0, int64(base), pageSize, base, out)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sc.currentBytes <= sc.lowAt {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if sc.currentBytes > maxBytes {
		t.Errorf("currentBytes = %d, exceeds maxBytes = %d after trimmer should have run", sc.currentBytes, maxBytes)
	}
}

func TestSegmentCacheCloseFlushesAllPages(t *testing.T) {
	segs := buildSegments(t, segstore.Segment{Start: 0, Length: 0x2000, FileOffset: 0})
	pool := pagepool.New(0x1000)
	store := patternStore(0x2000)

	sc := newSegmentCache(segs, 0x1000, 0x10000, pool, false, nil, zap.NewNop().Sugar())

	out := make([]byte, 4)
	sc.read(store, 0, 0, 0, 0x1000, 0, out)
	sc.read(store, 0x1000, 0, 0x1000, 0x1000, 0x1000, out)

	if err := sc.close(); err != nil {
		t.Fatal(err)
	}

	before := pool.Stats()
	if before.Frees < before.Allocs {
		t.Errorf("Frees=%d < Allocs=%d after close, expected all buffers returned", before.Frees, before.Allocs)
	}
}
