// Package buffer provides the storage media journal segments are written to.
//
// A Buffer is addressed positionally: readers hold their own offsets and use
// ReadAt, the single writer appends with WriteAt at its tail. No buffer keeps
// a shared cursor, so readers never disturb each other or the writer.
package buffer

import (
	"errors"
	"io"
	"sync"
)

var ErrClosed = errors.New("buffer: closed")

// Buffer is the byte store backing one segment.
type Buffer interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the number of bytes currently stored.
	Size() int64
	// Truncate discards everything at or after size.
	Truncate(size int64) error
	// Flush makes prior writes durable.
	Flush() error
	Close() error
}

// Memory is a heap-backed Buffer. Flush is a no-op.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

func NewMemory(capacity int) *Memory {
	return &Memory{data: make([]byte, 0, capacity)}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, errors.New("buffer: negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, errors.New("buffer: negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		if end > int64(cap(m.data)) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.data)
			m.data = grown
		} else {
			m.data = m.data[:end]
		}
	}
	return copy(m.data[off:], p), nil
}

func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

func (m *Memory) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if size < int64(len(m.data)) {
		// zero the tail so a later extension never resurrects old bytes
		clear(m.data[size:])
		m.data = m.data[:size]
	}
	return nil
}

func (m *Memory) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
