package pagecache

import (
	"os"

	"go.uber.org/zap"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultPageSize is the default page size used when creating a Cache
	// instance.
	DefaultPageSize = 4096

	// DefaultPageCount is the default capacity, in pages, of the LRU
	// variant.
	DefaultPageCount = 16384

	// DefaultMaxBytes is a byte budget of DefaultPageCount pages of
	// DefaultPageSize for the segment-sized variant. DefaultConfig does not
	// apply it: its Capacity is DefaultPageCount for either variant.
	DefaultMaxBytes = DefaultPageSize * DefaultPageCount

	// DefaultPointerSize is the default width, in bytes, of ReadPointer
	// results.
	DefaultPointerSize = 8
)

// Variant selects which cache strategy backs a Cache instance.
type Variant int

const (
	// LRU is a bounded fixed-page-count cache keyed on page base, evicting
	// the least-recently-used page on insert when full.
	LRU Variant = iota

	// SegmentSized pre-allocates one page descriptor per page of every
	// mapped segment, and trims resident pages in the background to stay
	// under a byte budget.
	SegmentSized
)

func (v Variant) String() string {
	switch v {
	case LRU:
		return "lru"
	case SegmentSized:
		return "segment-sized"
	default:
		return "unknown"
	}
}

// Config carries the configuration for a Cache.
type Config struct {
	// PageSize is the page size in bytes; must be a power of two.
	PageSize int64

	// Capacity is the page count (LRU variant) or byte budget
	// (SegmentSized variant).
	Capacity int64

	// Variant selects the caching strategy.
	Variant Variant

	// ThreadSafe declares whether the backing Store may be read
	// concurrently from multiple goroutines without external
	// synchronization. It should match the Store's own ThreadSafe()
	// value. NewWithConfig does not consult it: the cache never serializes
	// store reads itself, so a Store whose ReadAt is not safe for
	// concurrent calls must serialize them on its own (as FileStore does
	// when built with threadSafe false).
	ThreadSafe bool

	// UseOSMemoryFeatures opts the SegmentSized variant into OS-level
	// paging hints (madvise) on resident pages when the backing Store
	// supports them. Implementations are free to ignore it; it never
	// changes cache semantics.
	UseOSMemoryFeatures bool

	// PointerSize is the width, in bytes, that ReadPointer dispatches on:
	// 4 or 8. The Read Facade owns this constant; it is not interpreted
	// anywhere in the cache itself.
	PointerSize int

	// Logger receives structured diagnostics from the SegmentSized
	// variant's background trimmer (trim-cycle start/stop, pages evicted,
	// shutdown). It is never consulted on the hot read path. A nil
	// Logger is replaced with a no-op logger.
	Logger *zap.SugaredLogger
}

// DefaultConfig constructs a new Config instance initialized with the
// default configuration.
func DefaultConfig() *Config {
	return &Config{
		PageSize:    DefaultPageSize,
		Capacity:    DefaultPageCount,
		Variant:     LRU,
		ThreadSafe:  true,
		PointerSize: DefaultPointerSize,
	}
}

// Apply applies the list of options passed as arguments to c.
func (c *Config) Apply(options ...Option) {
	for _, opt := range options {
		opt.Configure(c)
	}
}

// Option is an interface implemented by options allowing configuration of
// new Cache instances.
type Option interface {
	Configure(*Config)
}

type option func(*Config)

func (opt option) Configure(config *Config) { opt(config) }

// PageSize is a cache configuration option setting the size of individual
// pages in a Cache instance. It must be a power of two or construction
// fails with ErrInvalidPageSize.
//
// Default: 4 KiB
func PageSize(size int64) Option {
	return option(func(config *Config) { config.PageSize = size })
}

// Capacity is a configuration option setting the page count (LRU variant)
// or byte budget (SegmentSized variant) of a Cache instance.
//
// Default: 16384 (DefaultPageCount) for either variant, which the
// SegmentSized variant reads as a 16384-byte budget.
func Capacity(n int64) Option {
	return option(func(config *Config) { config.Capacity = n })
}

// WithVariant selects the caching strategy.
//
// Default: LRU
func WithVariant(v Variant) Option {
	return option(func(config *Config) { config.Variant = v })
}

// ThreadSafe declares whether the backing store may be read concurrently.
//
// Default: true
func ThreadSafe(safe bool) Option {
	return option(func(config *Config) { config.ThreadSafe = safe })
}

// UseOSMemoryFeatures opts the SegmentSized variant into OS-level paging
// hints on resident pages.
//
// Default: false
func UseOSMemoryFeatures(use bool) Option {
	return option(func(config *Config) { config.UseOSMemoryFeatures = use })
}

// PointerSize sets the pointer width, in bytes, used by ReadPointer: 4 or 8.
//
// Default: 8
func PointerSize(size int) Option {
	return option(func(config *Config) { config.PointerSize = size })
}

// WithLogger installs a logger for the SegmentSized variant's trimmer.
//
// Default: a no-op logger
func WithLogger(log *zap.SugaredLogger) Option {
	return option(func(config *Config) { config.Logger = log })
}

// yamlConfig mirrors Config with JSON tags for sigs.k8s.io/yaml decoding.
// Variant is spelled out ("lru" / "segment-sized") rather than numerically
// so that config files stay self-describing.
type yamlConfig struct {
	PageSize            int64  `json:"page_size"`
	Capacity            int64  `json:"capacity"`
	Variant             string `json:"variant"`
	ThreadSafe          *bool  `json:"thread_safe"`
	UseOSMemoryFeatures bool   `json:"use_os_memory_features"`
	PointerSize         int    `json:"pointer_size"`
}

// LoadConfig reads a Config from a YAML file, applying DefaultConfig for
// any field the file omits. It is a convenience for command-line tools
// built on top of this package; constructing a Config via options remains
// the primary, dependency-free path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if doc.PageSize != 0 {
		config.PageSize = doc.PageSize
	}
	if doc.Capacity != 0 {
		config.Capacity = doc.Capacity
	}
	if doc.PointerSize != 0 {
		config.PointerSize = doc.PointerSize
	}
	if doc.ThreadSafe != nil {
		config.ThreadSafe = *doc.ThreadSafe
	}
	config.UseOSMemoryFeatures = doc.UseOSMemoryFeatures
	switch doc.Variant {
	case "", "lru":
		config.Variant = LRU
	case "segment-sized", "segment":
		config.Variant = SegmentSized
	default:
		return nil, ErrInvalidVariant
	}

	return config, nil
}
