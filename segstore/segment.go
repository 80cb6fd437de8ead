package segstore

import (
	"fmt"

	"github.com/segmentio/memcache/compare"
	"github.com/segmentio/memcache/container/tree"
)

// Segment is an immutable, contiguous range of virtual addresses backed by
// bytes at a known offset in a Store.
//
// Segment{Start: 0x1000, Length: 0x1000, FileOffset: 0} maps VA 0x1000 to
// file offset 0, VA 0x1001 to file offset 1, and so on up to (exclusive)
// VA 0x2000.
type Segment struct {
	Start      VA
	Length     int64
	FileOffset int64
}

// End returns the address one past the last byte of the segment.
func (s Segment) End() VA { return s.Start.Add(s.Length) }

// Contains reports whether a falls within the segment.
func (s Segment) Contains(a VA) bool {
	return a >= s.Start && a < s.End()
}

// Offset returns the Store offset corresponding to a, which must satisfy
// s.Contains(a).
func (s Segment) Offset(a VA) int64 {
	return s.FileOffset + a.Sub(s.Start)
}

// Map is an ordered collection of disjoint Segments, supporting binary
// search by virtual address. The zero value is an empty, usable Map.
//
// A Map is built once at cache open and never mutated afterward; lookups
// require no locking.
type Map struct {
	segments tree.Map[VA, Segment]
	init     bool
}

func (m *Map) lazyInit() {
	if !m.init {
		m.segments.Init(compare.Function[VA])
		m.init = true
	}
}

// Insert adds a segment to the map. It returns an error if the segment
// overlaps an existing one.
//
// A later Insert at the same Start as an existing segment is rejected rather
// than silently replacing it. Disjoint segments whose starts round down to the
// same page are both accepted; which of them owns that page is decided by the
// segment-sized cache at construction (see the design notes).
func (m *Map) Insert(s Segment) error {
	m.lazyInit()

	if s.Length <= 0 {
		return fmt.Errorf("segstore: segment at %#x has non-positive length %d", s.Start, s.Length)
	}

	if prevStart, prev, found := m.segments.Search(s.Start); found {
		if prevStart == s.Start {
			return fmt.Errorf("segstore: segment at %#x already exists", s.Start)
		}
		if prev.End() > s.Start {
			return fmt.Errorf("segstore: segment at %#x overlaps preceding segment at %#x..%#x", s.Start, prev.Start, prev.End())
		}
	}

	var overlap error
	m.segments.RangeFrom(s.Start, func(next VA, seg Segment) bool {
		if next < s.End() {
			overlap = fmt.Errorf("segstore: segment at %#x..%#x overlaps following segment at %#x", s.Start, s.End(), next)
		}
		return false
	})
	if overlap != nil {
		return overlap
	}

	m.segments.Insert(s.Start, s)
	return nil
}

// Len returns the number of segments in the map.
func (m *Map) Len() int { return m.segments.Len() }

// Range calls f for every segment in ascending Start order. If f returns
// false, iteration stops.
func (m *Map) Range(f func(Segment) bool) {
	m.segments.Range(func(_ VA, seg Segment) bool { return f(seg) })
}

// Find returns the segment containing a, and the byte offset within that
// segment, or ok=false if no segment contains a.
func (m *Map) Find(a VA) (seg Segment, offset int64, ok bool) {
	_, match, found := m.segments.Search(a)
	if !found || !match.Contains(a) {
		return Segment{}, 0, false
	}
	return match, a.Sub(match.Start), true
}

// SubRange describes the portion of a read that falls within a single
// segment.
type SubRange struct {
	Segment Segment
	Start   VA
	Length  int64
}

// Iterate yields each (segment, sub-range) intersecting [start, start+length)
// in ascending address order, stopping at the first gap between segments:
// a range that straddles a gap between two mapped segments only yields the
// sub-ranges that are actually covered.
//
// If f returns false, iteration stops early.
func (m *Map) Iterate(start VA, length int64, f func(SubRange) bool) {
	end := start.Add(length)
	cursor := start

	for cursor < end {
		seg, _, ok := m.Find(cursor)
		if !ok {
			return
		}
		segEnd := seg.End()
		stop := end
		if segEnd < stop {
			stop = segEnd
		}
		if !f(SubRange{Segment: seg, Start: cursor, Length: stop.Sub(cursor)}) {
			return
		}
		cursor = stop
	}
}
