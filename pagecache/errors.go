package pagecache

import "errors"

var (
	// ErrInvalidPageSize is returned by New/NewWithConfig when the
	// configured page size is not a power of two, or is not positive.
	ErrInvalidPageSize = errors.New("pagecache: page size must be a positive power of two")

	// ErrInvalidCapacity is returned by New/NewWithConfig when the
	// configured capacity (page count for the LRU variant, byte budget for
	// the segment-sized variant) is not positive.
	ErrInvalidCapacity = errors.New("pagecache: capacity must be positive")

	// ErrInvalidVariant is returned by LoadConfig when the variant field
	// of a config file names neither "lru" nor "segment-sized".
	ErrInvalidVariant = errors.New("pagecache: unrecognized variant")

	// ErrClosed is returned by Read once Close has been called; the typed
	// helpers, which return no error, report it as ok=false. Per the package's best-effort philosophy this is the
	// one read-time condition that is surfaced as a real error rather than
	// a short read, since a closed cache has no backing resources left to
	// serve a partial read from.
	ErrClosed = errors.New("pagecache: cache is closed")
)
