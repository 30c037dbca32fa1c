package journal

import (
	"sort"
	"sync"

	"github.com/downfa11-org/journal/pkg/types"
)

// PositionIndex is a sparse, in-memory index -> offset map for one segment.
// Samples are strictly increasing in both index and offset.
type PositionIndex struct {
	mu        sync.RWMutex
	interval  int64
	positions []types.Position
}

// NewPositionIndex samples at most one position per interval bytes of
// segment data. An interval of 1 samples every entry.
func NewPositionIndex(interval int) *PositionIndex {
	if interval <= 0 {
		interval = 1
	}
	return &PositionIndex{interval: int64(interval)}
}

// Index records the frame of index at offset if it is the first frame
// seen or lies at least one interval past the previous sample.
func (x *PositionIndex) Index(index uint64, offset int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n := len(x.positions); n > 0 {
		last := x.positions[n-1]
		if offset-int64(last.Offset) < x.interval {
			return false
		}
	}
	return x.record(index, offset)
}

// Record appends a sample unconditionally. Out-of-order samples are ignored.
func (x *PositionIndex) Record(index uint64, offset int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.record(index, offset)
}

func (x *PositionIndex) record(index uint64, offset int64) bool {
	if n := len(x.positions); n > 0 {
		last := x.positions[n-1]
		if index <= last.Index || uint64(offset) <= last.Offset {
			return false
		}
	}
	x.positions = append(x.positions, types.Position{Index: index, Offset: uint64(offset)})
	return true
}

// Lookup returns the sample with the greatest index <= index.
func (x *PositionIndex) Lookup(index uint64) (types.Position, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	i := sort.Search(len(x.positions), func(i int) bool {
		return x.positions[i].Index > index
	})
	if i == 0 {
		return types.Position{}, false
	}
	return x.positions[i-1], true
}

// Truncate drops every sample with an index greater than index.
func (x *PositionIndex) Truncate(index uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i := sort.Search(len(x.positions), func(i int) bool {
		return x.positions[i].Index > index
	})
	clear(x.positions[i:])
	x.positions = x.positions[:i]
}

func (x *PositionIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.positions)
}
