//go:build unix

package segstore

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MappedStore is a Store backed by a memory-mapped view of a dump file.
// ReadAt copies straight out of the mapping into the caller's buffer. This is
// the preferred Store implementation per the package's design, since a page
// fill costs one copy and no read syscall.
//
// MappedStore is always thread-safe: the mapping is read-only and mapped
// once for the lifetime of the store.
type MappedStore struct {
	file *os.File
	data []byte
}

// NewMappedStore maps the entirety of f into memory for reading. The file
// must remain open for the lifetime of the returned store; Close unmaps the
// view and closes the file.
func NewMappedStore(f *os.File) (*MappedStore, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("segstore: stat dump file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return &MappedStore{file: f}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("segstore: mmap dump file: %w", err)
	}

	return &MappedStore{file: f, data: data}, nil
}

func (s *MappedStore) ReadAt(off int64, p []byte) (int, error) {
	if off < 0 || off >= int64(len(s.data)) {
		return 0, nil
	}
	n := copy(p, s.data[off:])
	return n, nil
}

func (s *MappedStore) ThreadSafe() bool { return true }

func (s *MappedStore) Close() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return err
		}
		s.data = nil
	}
	return s.file.Close()
}

// Advise hints to the OS that the page range starting at the mapped offset
// off is about to be read (or is no longer needed), via madvise(2). This
// backs the cache's optional use_os_memory_features mode; it never affects
// correctness, only paging behaviour.
func (s *MappedStore) Advise(off int64, length int, willNeed bool) error {
	if off < 0 || off >= int64(len(s.data)) {
		return nil
	}
	end := off + int64(length)
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}
	advice := unix.MADV_DONTNEED
	if willNeed {
		advice = unix.MADV_WILLNEED
	}
	return unix.Madvise(s.data[off:end], advice)
}
