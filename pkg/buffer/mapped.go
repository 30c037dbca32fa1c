package buffer

import (
	"sync"

	"golang.org/x/exp/mmap"
)

// Mapped is a read-only memory-mapped view of a sealed segment file.
type Mapped struct {
	mu     sync.RWMutex
	reader *mmap.ReaderAt
}

func OpenMapped(path string) (*Mapped, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &Mapped{reader: r}, nil
}

func (m *Mapped) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reader == nil {
		return 0, ErrClosed
	}
	return m.reader.ReadAt(p, off)
}

func (m *Mapped) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reader == nil {
		return 0
	}
	return m.reader.Len()
}

func (m *Mapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reader == nil {
		return nil
	}
	err := m.reader.Close()
	m.reader = nil
	return err
}
