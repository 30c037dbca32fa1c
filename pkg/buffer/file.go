package buffer

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/downfa11-org/journal/util"
)

// File is a Buffer backed by one segment file.
type File struct {
	path string

	mu     sync.RWMutex // guards file against Close while I/O is in flight
	file   *os.File
	size   atomic.Int64
	closed bool
}

// OpenFile opens path for reading and writing, creating it when missing.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			util.Error("failed to close file: %v", cerr)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	adviseSequential(f)

	b := &File{path: path, file: f}
	b.size.Store(info.Size())
	return b, nil
}

func (b *File) Path() string {
	return b.path
}

func (b *File) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	return b.file.ReadAt(p, off)
}

func (b *File) WriteAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}

	n, err := b.file.WriteAt(p, off)
	if end := off + int64(n); end > b.size.Load() {
		b.size.Store(end)
	}
	return n, err
}

func (b *File) Size() int64 {
	return b.size.Load()
}

func (b *File) Truncate(size int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if size >= b.size.Load() {
		return nil
	}
	if err := b.file.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s: %w", b.path, err)
	}
	b.size.Store(size)
	return nil
}

func (b *File) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if err := syncData(b.file); err != nil {
		return fmt.Errorf("sync %s: %w", b.path, err)
	}
	return nil
}

func (b *File) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.file.Close()
}

// Remove closes the buffer and deletes its file.
func (b *File) Remove() error {
	if err := b.Close(); err != nil {
		util.Error("failed to close %s before removal: %v", b.path, err)
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
