package journal_test

import (
	"testing"

	"github.com/downfa11-org/journal/pkg/journal"
)

func entry(index uint64, s string) journal.Indexed[string] {
	return journal.Indexed[string]{Index: index, Entry: s, Size: uint32(len(s))}
}

func TestSegmentCacheGetPut(t *testing.T) {
	c := journal.NewSegmentCache[string](4, 0)

	for i := uint64(1); i <= 6; i++ {
		c.Put(entry(i, "e"), int64(i*10))
	}

	if c.Boundary() != 6 {
		t.Fatalf("expected boundary 6, got %d", c.Boundary())
	}
	if _, _, ok := c.Get(2); ok {
		t.Errorf("expected index 2 to be evicted")
	}
	e, offset, ok := c.Get(5)
	if !ok || e.Index != 5 || offset != 50 {
		t.Errorf("Get(5) = %+v, %d, %v", e, offset, ok)
	}
}

func TestSegmentCacheBoundaryNeedsContiguity(t *testing.T) {
	c := journal.NewSegmentCache[string](8, 0)

	c.Put(entry(1, "a"), 10)
	c.Put(entry(3, "c"), 30)

	if c.Boundary() != 1 {
		t.Fatalf("expected boundary 1 after a gap, got %d", c.Boundary())
	}
	if _, _, ok := c.Get(3); ok {
		t.Errorf("expected index beyond the boundary to be hidden")
	}
}

func TestSegmentCacheTruncate(t *testing.T) {
	c := journal.NewSegmentCache[string](8, 0)
	for i := uint64(1); i <= 5; i++ {
		c.Put(entry(i, "old"), int64(i))
	}

	c.Truncate(2)
	if c.Boundary() != 2 {
		t.Fatalf("expected boundary 2, got %d", c.Boundary())
	}
	for i := uint64(3); i <= 5; i++ {
		if _, _, ok := c.Get(i); ok {
			t.Errorf("expected index %d to be evicted", i)
		}
	}

	c.Put(entry(3, "new"), 3)
	if e, _, ok := c.Get(3); !ok || e.Entry != "new" {
		t.Errorf("expected rewritten entry, got %+v", e)
	}

	// truncating above the boundary never raises it
	c.Truncate(10)
	if c.Boundary() != 3 {
		t.Errorf("expected boundary 3, got %d", c.Boundary())
	}
}

func TestSegmentCacheZeroCapacity(t *testing.T) {
	c := journal.NewSegmentCache[string](0, 9)

	c.Put(entry(10, "x"), 100)
	if _, _, ok := c.Get(10); ok {
		t.Errorf("expected nothing cached")
	}
	if c.Boundary() != 10 {
		t.Errorf("expected boundary tracked without capacity, got %d", c.Boundary())
	}
}
