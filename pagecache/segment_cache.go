package pagecache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/segmentio/memcache/internal/pagepool"
	"github.com/segmentio/memcache/segstore"
)

// trimWakeFraction and trimLowFraction are the high/low watermarks for the
// background trimmer: it wakes once resident bytes cross 95% of the
// budget, and its second pass targets getting back under 60%.
const (
	trimWakeFraction = 0.95
	trimLowFraction  = 0.60
	trimTick         = 10 * time.Second
)

// segmentCache is the byte-budget cache variant: every page of every
// segment gets a pre-allocated descriptor at construction, and a
// background trimmer keeps resident bytes under a budget.
type segmentCache struct {
	pageSize int64
	maxBytes int64
	wakeAt   int64
	lowAt    int64
	useOS    bool
	mapped   *segstore.MappedStore // non-nil only when useOS and the store supports madvise hints
	log      *zap.SugaredLogger

	// index and order are built once at construction and never mutated
	// afterward, so reads need no lock to consult them.
	index map[segstore.VA]*entry
	order []*entry // construction (ascending address) order, used by the trimmer's third pass

	currentBytes int64 // atomic
	age          uint64
	hits         int64
	misses       int64
	pageOuts     int64

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func newSegmentCache(segments *segstore.Map, pageSize, maxBytes int64, pool *pagepool.Pool, useOS bool, mapped *segstore.MappedStore, log *zap.SugaredLogger) *segmentCache {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	sc := &segmentCache{
		pageSize: pageSize,
		maxBytes: maxBytes,
		wakeAt:   int64(float64(maxBytes) * trimWakeFraction),
		lowAt:    int64(float64(maxBytes) * trimLowFraction),
		useOS:    useOS,
		mapped:   mapped,
		log:      log,
		index:    make(map[segstore.VA]*entry),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	segments.Range(func(seg segstore.Segment) bool {
		base := floorToPage(seg.Start, pageSize)
		var prev *entry

		for base < seg.End() {
			if existing, ok := sc.index[base]; ok {
				// First-inserted wins (see the design notes' open question):
				// this page already belongs to an earlier segment. We do
				// not chain into someone else's descriptor.
				_ = existing
				prev = nil
				base = base.Add(pageSize)
				continue
			}

			validStart := seg.Start
			if base > validStart {
				validStart = base
			}
			skip := int32(validStart.Sub(base))
			remaining := seg.End().Sub(validStart)
			want := pageSize - int64(skip)
			if want > remaining {
				want = remaining
			}

			e := newEntry(pool)
			e.base = base
			e.skip = skip
			e.fileOffset = seg.Offset(validStart)
			e.want = int32(want)

			sc.index[base] = e
			sc.order = append(sc.order, e)
			if prev != nil {
				prev.next = e
			}
			prev = e
			base = base.Add(pageSize)
		}
		return true
	})

	sc.wg.Add(1)
	go sc.trimLoop()
	return sc
}

func floorToPage(a segstore.VA, pageSize int64) segstore.VA {
	return segstore.VA(uint64(a) &^ uint64(pageSize-1))
}

// entryAt returns the pre-built descriptor for the page starting at base,
// or nil if base isn't the start of any registered page (either the
// address isn't covered by any segment, or it lost a first-inserted-wins
// collision to an earlier segment at construction).
func (sc *segmentCache) entryAt(base segstore.VA) *entry {
	return sc.index[base]
}

func (sc *segmentCache) read(store segstore.Store, base segstore.VA, _ int32, _ int64, _ int32, va segstore.VA, out []byte) (n int, effSize int32) {
	e := sc.entryAt(base)
	if e == nil {
		return 0, 0
	}

	n, effSize, filledNow := e.readAt(store, va, out, func() { e.touchAge(&sc.age) })
	if filledNow {
		atomic.AddInt64(&sc.misses, 1)
		if effSize > 0 {
			grown := atomic.AddInt64(&sc.currentBytes, int64(effSize))
			if sc.useOS && sc.mapped != nil {
				_ = sc.mapped.Advise(e.fileOffset, int(effSize), true)
			}
			if grown >= sc.wakeAt {
				sc.signalWake()
			}
		}
	} else {
		atomic.AddInt64(&sc.hits, 1)
	}
	return n, effSize
}

func (sc *segmentCache) signalWake() {
	select {
	case sc.wake <- struct{}{}:
	default:
	}
}

func (sc *segmentCache) flush() {
	for _, e := range sc.order {
		e.mu.Lock()
		freed := e.release()
		e.mu.Unlock()
		if freed > 0 {
			atomic.AddInt64(&sc.currentBytes, -int64(freed))
		}
	}
}

func (sc *segmentCache) close() error {
	close(sc.done)
	sc.wg.Wait()
	sc.flush()
	return nil
}

func (sc *segmentCache) stats() variantStats {
	return variantStats{
		hits:     atomic.LoadInt64(&sc.hits),
		misses:   atomic.LoadInt64(&sc.misses),
		pageOuts: atomic.LoadInt64(&sc.pageOuts),
	}
}

// trimLoop is the dedicated trimmer goroutine: it wakes either on the wake
// event or every trimTick seconds (so shutdown is always bounded), and
// applies the two-pass (plus fallback) eviction policy.
func (sc *segmentCache) trimLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(trimTick)
	defer ticker.Stop()

	for {
		select {
		case <-sc.done:
			return
		case <-sc.wake:
			sc.trim()
		case <-ticker.C:
			sc.trim()
		}
	}
}

func (sc *segmentCache) trim() {
	if atomic.LoadInt64(&sc.currentBytes) < sc.wakeAt {
		return
	}

	age := atomic.AddUint64(&sc.age, 1)
	before := atomic.LoadInt64(&sc.currentBytes)
	sc.log.Debugw("trim cycle starting", "resident_bytes", before, "max_bytes", sc.maxBytes, "age", age)

	// First pass: evict pages not touched in the "older half" of history.
	freed := sc.pageOutWhere(func(e *entry) bool { return e.loadAge() < age/2 })

	// Second pass: if still above the low watermark, evict anything not
	// touched this age tick.
	if atomic.LoadInt64(&sc.currentBytes) > sc.lowAt {
		freed += sc.pageOutWhere(func(e *entry) bool { return e.loadAge() < age })
	}

	// Third pass (fallback): walk pages in construction order until under
	// the low watermark, regardless of age. This guarantees forward
	// progress even under pathological access patterns.
	if atomic.LoadInt64(&sc.currentBytes) > sc.lowAt {
		for _, e := range sc.order {
			if atomic.LoadInt64(&sc.currentBytes) <= sc.lowAt {
				break
			}
			freed += sc.pageOutOne(e)
		}
	}

	sc.log.Debugw("trim cycle finished", "pages_evicted", freed, "resident_bytes", atomic.LoadInt64(&sc.currentBytes))
}

func (sc *segmentCache) pageOutWhere(shouldEvict func(*entry) bool) int64 {
	var n int64
	for _, e := range sc.order {
		if shouldEvict(e) {
			n += sc.pageOutOne(e)
		}
	}
	return n
}

// pageOutOne evicts a single entry if it is resident, acquiring its write
// lock so that a reader mid-copy is never interrupted. It returns 1 if a
// page was actually freed, 0 otherwise.
func (sc *segmentCache) pageOutOne(e *entry) int64 {
	e.mu.Lock()
	freed := e.release()
	e.mu.Unlock()
	if freed == 0 {
		return 0
	}
	atomic.AddInt64(&sc.currentBytes, -int64(freed))
	atomic.AddInt64(&sc.pageOuts, 1)
	return 1
}
