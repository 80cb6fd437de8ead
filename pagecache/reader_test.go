package pagecache_test

import (
	"sync"
	"testing"

	"github.com/segmentio/memcache/pagecache"
	"github.com/segmentio/memcache/segstore"
)

// patternStore is a Store whose byte at offset i is i&0xff, matching the
// pattern used throughout the design notes' worked examples.
type patternStore struct {
	size int
}

func (s patternStore) ReadAt(off int64, p []byte) (int, error) {
	if off < 0 || off >= int64(s.size) {
		return 0, nil
	}
	n := len(p)
	if remaining := int64(s.size) - off; int64(n) > remaining {
		n = int(remaining)
	}
	for i := 0; i < n; i++ {
		p[i] = byte((off + int64(i)) & 0xff)
	}
	return n, nil
}

func (s patternStore) ThreadSafe() bool { return true }
func (s patternStore) Close() error     { return nil }

// shortStore behaves like patternStore but truncates reads that fall at or
// past cutoff, simulating a dump file whose declared segment length
// outruns what the backing file actually contains.
type shortStore struct {
	patternStore
	cutoff int64
}

func (s shortStore) ReadAt(off int64, p []byte) (int, error) {
	if off >= s.cutoff {
		return 0, nil
	}
	if limit := s.cutoff - off; int64(len(p)) > limit {
		p = p[:limit]
	}
	return s.patternStore.ReadAt(off, p)
}

func newCache(t *testing.T, store segstore.Store, segments *segstore.Map, opts ...pagecache.Option) *pagecache.Cache {
	t.Helper()
	c, err := pagecache.New(store, segments, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// Scenario 1: single fully-contained read.
func TestScenarioSingleContainedRead(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x1000, Length: 0x4000, FileOffset: 0}))

	c := newCache(t, patternStore{size: 0x4000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	out := make([]byte, 0x10)
	n, err := c.Read(0x1234, out)
	if err != nil || n != 0x10 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	for i, b := range out {
		want := byte((0x234 + i) & 0xff)
		if b != want {
			t.Fatalf("out[%d] = %#x, want %#x", i, b, want)
		}
	}
}

// Scenario 2: cross-page read within one segment.
func TestScenarioCrossPageRead(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x1000, Length: 0x4000, FileOffset: 0}))

	c := newCache(t, patternStore{size: 0x4000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	out := make([]byte, 0x10)
	n, err := c.Read(0x1FF8, out)
	if err != nil || n != 0x10 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	for i, b := range out {
		want := byte((0xFF8 + i) & 0xff)
		if b != want {
			t.Fatalf("out[%d] = %#x, want %#x", i, b, want)
		}
	}

	stats := c.Stats()
	if stats.MultiPageReads != 1 {
		t.Errorf("MultiPageReads = %d, want 1", stats.MultiPageReads)
	}
	if stats.UnalignedReads != 1 {
		t.Errorf("UnalignedReads = %d, want 1", stats.UnalignedReads)
	}
}

// Scenario 3: read across a segment gap.
func TestScenarioReadAcrossGap(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x1000, Length: 0x1000, FileOffset: 0}))
	must(t, m.Insert(segstore.Segment{Start: 0x3000, Length: 0x1000, FileOffset: 0x1000}))

	c := newCache(t, patternStore{size: 0x2000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	out := make([]byte, 0x20)
	n, err := c.Read(0x1FF0, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x10 {
		t.Fatalf("n = %#x, want 0x10 (stops at end of first segment)", n)
	}
}

// Scenario 4: short backing store.
func TestScenarioShortBackingStore(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x2000, Length: 0x2000, FileOffset: 0x1000}))

	store := shortStore{patternStore: patternStore{size: 0x3000}, cutoff: 0x1800}
	c := newCache(t, store, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	// VA 0x2700 -> file offset 0x1700, on the page starting at file
	// offset 0x1000, which the store truncates to 0x1800 (0x800 bytes).
	out := make([]byte, 0x200)
	n, err := c.Read(0x2700, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x100 {
		t.Fatalf("n = %#x, want 0x100 (0x1800-0x1700)", n)
	}
}

// Scenario 5: eviction under LRU.
func TestScenarioLRUEviction(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x1000, Length: 0x3000, FileOffset: 0}))

	c := newCache(t, patternStore{size: 0x3000}, &m,
		pagecache.PageSize(0x1000),
		pagecache.Capacity(2),
		pagecache.WithVariant(pagecache.LRU),
	)
	defer c.Close()

	out := make([]byte, 1)
	for _, va := range []segstore.VA{0x1000, 0x2000, 0x3000} {
		if _, err := c.Read(va, out); err != nil {
			t.Fatal(err)
		}
	}

	before := c.Stats()
	if _, err := c.Read(0x1000, out); err != nil {
		t.Fatal(err)
	}
	after := c.Stats()

	if after.Misses != before.Misses+1 {
		t.Errorf("expected re-reading 0x1000 to miss (it was evicted): misses before=%d after=%d", before.Misses, after.Misses)
	}
}

// Scenario 6: concurrent readers.
func TestScenarioConcurrentReaders(t *testing.T) {
	const size = 16 << 20
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0, Length: size, FileOffset: 0}))

	c := newCache(t, patternStore{size: size}, &m, pagecache.PageSize(0x1000), pagecache.Capacity(512))
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			rnd := seed*2654435761 + 1
			out := make([]byte, 32)
			for i := 0; i < 10000; i++ {
				rnd = rnd*1103515245 + 12345
				va := segstore.VA(uint32(rnd) % (size - 32))
				n, err := c.Read(va, out)
				if err != nil {
					t.Error(err)
					return
				}
				for j := 0; j < n; j++ {
					want := byte((int64(va) + int64(j)) & 0xff)
					if out[j] != want {
						t.Errorf("mismatch at va=%#x+%d: got %#x want %#x", va, j, out[j], want)
						return
					}
				}
			}
		}(g + 1)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Hits+stats.Misses == 0 {
		t.Error("expected a nonzero number of page touches")
	}
}

func TestReadOutOfRangeVAYieldsZeroBytes(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0x1000, Length: 0x1000, FileOffset: 0}))
	c := newCache(t, patternStore{size: 0x1000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	out := make([]byte, 4)
	n, err := c.Read(0x9000, out)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v, want 0,nil", n, err)
	}
}

func TestReadAfterCloseReturnsErrClosed(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0, Length: 0x1000, FileOffset: 0}))
	c := newCache(t, patternStore{size: 0x1000}, &m, pagecache.PageSize(0x1000))

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	out := make([]byte, 4)
	if _, err := c.Read(0, out); err != pagecache.ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestReadIdempotentAcrossRepeatedCalls(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0, Length: 0x2000, FileOffset: 0}))
	c := newCache(t, patternStore{size: 0x2000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	out1 := make([]byte, 0x20)
	out2 := make([]byte, 0x20)
	n1, _ := c.Read(0x1FE0, out1)
	n2, _ := c.Read(0x1FE0, out2)
	if n1 != n2 {
		t.Fatalf("n1=%d n2=%d, want equal", n1, n2)
	}
	for i := range out1[:n1] {
		if out1[i] != out2[i] {
			t.Fatalf("out mismatch at %d", i)
		}
	}
}

func TestReadValueAndReadPointer(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0, Length: 0x1000, FileOffset: 0}))
	c := newCache(t, patternStore{size: 0x1000}, &m, pagecache.PageSize(0x1000), pagecache.PointerSize(8))
	defer c.Close()

	v, ok := pagecache.ReadValue[uint32](c, 0)
	if !ok {
		t.Fatal("ReadValue failed")
	}
	want := uint32(0) | uint32(1)<<8 | uint32(2)<<16 | uint32(3)<<24
	if v != want {
		t.Errorf("ReadValue = %#x, want %#x", v, want)
	}

	if _, ok := c.ReadPointer(0); ok {
		t.Error("ReadPointer(0) should short-circuit as failure")
	}

	ptr, ok := c.ReadPointer(8)
	if !ok {
		t.Fatal("ReadPointer failed")
	}
	if ptr == 0 {
		t.Error("expected a nonzero pointer value")
	}
}

func TestPrefetchMaterialisesPagesWithoutReturningBytes(t *testing.T) {
	var m segstore.Map
	must(t, m.Insert(segstore.Segment{Start: 0, Length: 0x4000, FileOffset: 0}))
	c := newCache(t, patternStore{size: 0x4000}, &m, pagecache.PageSize(0x1000))
	defer c.Close()

	c.Prefetch(0, 0x3000)
	before := c.Stats()

	out := make([]byte, 4)
	if _, err := c.Read(0x1000, out); err != nil {
		t.Fatal(err)
	}
	after := c.Stats()

	if after.Hits != before.Hits+1 {
		t.Errorf("expected the prefetched page to be a hit: before=%d after=%d", before.Hits, after.Hits)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
