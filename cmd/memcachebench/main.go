// Command memcachebench drives the paged memory cache against a dump file
// (or any regular file treated as one undifferentiated segment) and reports
// hit-rate and throughput statistics. It exists to exercise both cache
// variants end-to-end outside of the test suite, the way a developer would
// when tuning page size or capacity for a new workload.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/segmentio/memcache/pagecache"
	"github.com/segmentio/memcache/segstore"
)

func main() {
	var (
		file        = flag.String("file", "", "path to the dump file to read through the cache (required)")
		configPath  = flag.String("config", "", "path to a YAML cache config; overrides -page-size/-capacity/-variant when set")
		pageSize    = flag.Int64("page-size", pagecache.DefaultPageSize, "page size in bytes, must be a power of two")
		capacity    = flag.Int64("capacity", pagecache.DefaultPageCount, "page count (lru) or byte budget (segment-sized)")
		variantFlag = flag.String("variant", "lru", "cache variant: lru or segment-sized")
		useMmap     = flag.Bool("mmap", true, "memory-map the dump file instead of reading through pread")
		readSize    = flag.Int("read-size", 64, "size in bytes of each simulated read")
		iterations  = flag.Int("iterations", 1_000_000, "number of reads to perform")
		verbose     = flag.Bool("v", false, "enable debug logging from the cache's background trimmer")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "memcachebench: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	zapConfig := zap.NewProductionConfig()
	if *verbose {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zl, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatalw("opening dump file", "error", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Fatalw("stat dump file", "error", err)
	}

	var store segstore.Store
	if *useMmap {
		mapped, err := segstore.NewMappedStore(f)
		if err != nil {
			logger.Fatalw("memory-mapping dump file", "error", err)
		}
		store = mapped
	} else {
		store = segstore.NewFileStore(f)
	}
	defer store.Close()

	var segments segstore.Map
	if err := segments.Insert(segstore.Segment{Start: 0, Length: info.Size(), FileOffset: 0}); err != nil {
		logger.Fatalw("building segment map", "error", err)
	}

	config := pagecache.DefaultConfig()
	if *configPath != "" {
		loaded, err := pagecache.LoadConfig(*configPath)
		if err != nil {
			logger.Fatalw("loading cache config", "path", *configPath, "error", err)
		}
		config = loaded
	} else {
		config.PageSize = *pageSize
		config.Capacity = *capacity
		switch *variantFlag {
		case "lru":
			config.Variant = pagecache.LRU
		case "segment-sized", "segment":
			config.Variant = pagecache.SegmentSized
		default:
			logger.Fatalw("unrecognized variant", "variant", *variantFlag)
		}
	}
	config.Logger = logger

	c, err := pagecache.NewWithConfig(store, &segments, config)
	if err != nil {
		logger.Fatalw("constructing cache", "error", err)
	}
	defer c.Close()

	logger.Infow("starting benchmark",
		"file", *file,
		"file_size", info.Size(),
		"variant", config.Variant.String(),
		"page_size", config.PageSize,
		"capacity", config.Capacity,
		"iterations", *iterations,
	)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	out := make([]byte, *readSize)
	maxVA := info.Size() - int64(*readSize)
	if maxVA < 1 {
		logger.Fatalw("dump file too small for the requested read size", "file_size", info.Size(), "read_size", *readSize)
	}

	start := time.Now()
	var totalBytes int64
	for i := 0; i < *iterations; i++ {
		va := segstore.VA(rnd.Int63n(maxVA))
		n, err := c.Read(va, out)
		if err != nil {
			logger.Fatalw("read failed", "va", va, "error", err)
		}
		totalBytes += int64(n)
	}
	elapsed := time.Since(start)

	stats := c.Stats()
	fmt.Printf("cache_id=%s\n", stats.CacheID)
	fmt.Printf("reads=%d bytes=%d elapsed=%s throughput=%.1f MiB/s\n",
		*iterations, totalBytes, elapsed, float64(totalBytes)/elapsed.Seconds()/(1<<20))
	fmt.Printf("hits=%d misses=%d hit_rate=%.4f\n", stats.Hits, stats.Misses, stats.HitRate())
	fmt.Printf("multi_page_reads=%d unaligned_reads=%d page_outs=%d\n",
		stats.MultiPageReads, stats.UnalignedReads, stats.PageOuts)
}
