// Package segstore implements the backing-store and address-space-mapping
// layer that the page cache reads through.
//
// A Store is a random-access byte source: a dump file opened directly, a
// memory-mapped view of one, or (in principle) a live-process reader. A Map
// is the ordered collection of Segments that translates a virtual address in
// the target process into an offset into a Store. Neither type interprets
// the bytes it moves; that is left entirely to callers.
package segstore

// VA is a virtual address in the address space of the process or dump being
// inspected. It is never dereferenced by this package.
type VA uint64

// Add returns the address offset bytes past a.
func (a VA) Add(offset int64) VA { return VA(int64(a) + offset) }

// Sub returns the number of bytes between a and b (a - b).
func (a VA) Sub(b VA) int64 { return int64(a) - int64(b) }
