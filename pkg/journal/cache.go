package journal

import "sync"

type cacheSlot[E any] struct {
	entry  Indexed[E]
	offset int64
	ok     bool
}

// SegmentCache keeps recently appended entries of one segment in a ring
// keyed by index. Boundary is the highest index known to exist
// contiguously from the segment start; entries below it may have been
// evicted, but nothing above it exists.
type SegmentCache[E any] struct {
	mu       sync.RWMutex
	slots    []cacheSlot[E]
	boundary uint64
}

// NewSegmentCache returns a cache holding up to capacity entries. A zero
// capacity still tracks the boundary.
func NewSegmentCache[E any](capacity int, boundary uint64) *SegmentCache[E] {
	if capacity < 0 {
		capacity = 0
	}
	return &SegmentCache[E]{slots: make([]cacheSlot[E], capacity), boundary: boundary}
}

func (c *SegmentCache[E]) slot(index uint64) *cacheSlot[E] {
	return &c.slots[index%uint64(len(c.slots))]
}

// Get returns the cached entry for index and the offset of its frame.
func (c *SegmentCache[E]) Get(index uint64) (Indexed[E], int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.slots) == 0 || index > c.boundary {
		return Indexed[E]{}, 0, false
	}
	s := c.slot(index)
	if !s.ok || s.entry.Index != index {
		return Indexed[E]{}, 0, false
	}
	return s.entry, s.offset, true
}

// Put caches entry. The boundary only advances for the entry right after it.
func (c *SegmentCache[E]) Put(entry Indexed[E], offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.slots) > 0 {
		*c.slot(entry.Index) = cacheSlot[E]{entry: entry, offset: offset, ok: true}
	}
	if entry.Index == c.boundary+1 {
		c.boundary = entry.Index
	}
}

// Advance moves the boundary past index without caching an entry for it.
func (c *SegmentCache[E]) Advance(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index == c.boundary+1 {
		c.boundary = index
	}
}

func (c *SegmentCache[E]) Boundary() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boundary
}

// Truncate evicts every entry above index and clamps the boundary to it.
func (c *SegmentCache[E]) Truncate(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.slots {
		if c.slots[i].ok && c.slots[i].entry.Index > index {
			c.slots[i] = cacheSlot[E]{}
		}
	}
	if index < c.boundary {
		c.boundary = index
	}
}

// Reset drops every entry and sets the boundary.
func (c *SegmentCache[E]) Reset(boundary uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.slots)
	c.boundary = boundary
}
