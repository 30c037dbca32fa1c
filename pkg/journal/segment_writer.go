package journal

import (
	"fmt"
	"sync"

	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

// SegmentWriter appends framed entries at the tail of one segment.
// A segment has exactly one writer.
type SegmentWriter[E any] struct {
	mu        sync.Mutex
	seg       *Segment[E]
	lastEntry *Indexed[E]
	frame     []byte
}

func newSegmentWriter[E any](seg *Segment[E]) *SegmentWriter[E] {
	return &SegmentWriter[E]{seg: seg}
}

func (w *SegmentWriter[E]) LastIndex() uint64 {
	return w.seg.LastIndex()
}

func (w *SegmentWriter[E]) NextIndex() uint64 {
	return w.seg.LastIndex() + 1
}

// LastEntry returns the most recently written entry. After a reopen or a
// truncation it is read back from the segment.
func (w *SegmentWriter[E]) LastEntry() (Indexed[E], bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seg.IsEmpty() {
		return Indexed[E]{}, false
	}
	if w.lastEntry != nil && w.lastEntry.Index == w.seg.LastIndex() {
		return *w.lastEntry, true
	}

	last := w.seg.LastIndex()
	if e, _, ok := w.seg.cache.Get(last); ok {
		w.lastEntry = &e
		return e, true
	}

	r := w.seg.OpenReader()
	defer r.Close()
	if err := r.ResetTo(last); err != nil {
		return Indexed[E]{}, false
	}
	e, err := r.Next()
	if err != nil || e.Index != last {
		util.Warn("segment %d: cannot read back entry %d: %v", w.seg.ID(), last, err)
		return Indexed[E]{}, false
	}
	w.lastEntry = &e
	return e, true
}

// Append encodes entry and writes it at NextIndex.
func (w *SegmentWriter[E]) Append(entry E) (Indexed[E], error) {
	payload, err := w.seg.codec.Encode(entry)
	if err != nil {
		return Indexed[E]{}, fmt.Errorf("encode entry: %w", err)
	}
	return w.AppendEncoded(entry, payload)
}

// AppendIndexed appends entry.Entry, which must carry the next index.
func (w *SegmentWriter[E]) AppendIndexed(entry Indexed[E]) (Indexed[E], error) {
	if next := w.NextIndex(); entry.Index != next {
		return Indexed[E]{}, fmt.Errorf("%w: got %d, next is %d", ErrIndexMismatch, entry.Index, next)
	}
	return w.Append(entry.Entry)
}

// AppendEncoded writes payload, the already encoded form of entry.
func (w *SegmentWriter[E]) AppendEncoded(entry E, payload []byte) (Indexed[E], error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.seg
	switch {
	case len(payload) == 0:
		return Indexed[E]{}, ErrEmptyEntry
	case len(payload) > seg.opts.MaxEntrySize:
		return Indexed[E]{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrEntryTooLarge, len(payload), seg.opts.MaxEntrySize)
	case seg.Sealed():
		return Indexed[E]{}, fmt.Errorf("%w: segment %d is sealed", ErrStorage, seg.ID())
	}

	tail := seg.tail.Load()
	size := types.FrameHeaderSize + int64(len(payload))
	if seg.Length() >= seg.maxEntries || tail+size > seg.maxSize {
		return Indexed[E]{}, ErrSegmentFull
	}

	w.frame = appendFrame(w.frame[:0], payload)
	if _, err := seg.buffer.WriteAt(w.frame, tail); err != nil {
		if terr := seg.buffer.Truncate(tail); terr != nil {
			util.Error("segment %d: drop partial frame at %d: %v", seg.ID(), tail, terr)
		}
		return Indexed[E]{}, fmt.Errorf("%w: write segment %d: %v", ErrStorage, seg.ID(), err)
	}

	index := seg.LastIndex() + 1
	seg.index.Index(index, tail)
	seg.publish(tail+size, index)

	written := Indexed[E]{Index: index, Entry: entry, Size: uint32(len(payload))}

	// cache what was written, not the caller's value, which may be mutated later
	stored, err := seg.codec.Decode(w.frame[types.FrameHeaderSize:])
	if err != nil {
		util.Debug("segment %d: entry %d not cached: %v", seg.ID(), index, err)
		seg.cache.Advance(index)
		w.lastEntry = nil
		return written, nil
	}
	cached := Indexed[E]{Index: index, Entry: stored, Size: written.Size}
	seg.cache.Put(cached, tail)
	w.lastEntry = &cached
	return written, nil
}

// Truncate discards every entry after index. Truncating to FirstIndex-1
// empties the segment.
func (w *SegmentWriter[E]) Truncate(index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.seg
	if index >= seg.LastIndex() {
		return nil
	}
	if index+1 < seg.FirstIndex() {
		return fmt.Errorf("%w: %d precedes segment %d starting at %d", ErrIndexOutOfRange, index, seg.ID(), seg.FirstIndex())
	}

	end := int64(types.DescriptorSize)
	if index >= seg.FirstIndex() {
		var err error
		if end, err = seg.endOf(index); err != nil {
			return err
		}
	}

	seg.publish(end, index)
	seg.cache.Truncate(index)
	seg.index.Truncate(index)
	seg.recordTruncation(index)
	w.lastEntry = nil

	if err := seg.buffer.Truncate(end); err != nil {
		return fmt.Errorf("%w: truncate segment %d: %v", ErrStorage, seg.ID(), err)
	}
	util.Debug("segment %d truncated to index %d (%d bytes)", seg.ID(), index, end)
	return nil
}

func (w *SegmentWriter[E]) Flush() error {
	return w.seg.Flush()
}

// Close flushes pending writes. The segment itself stays open.
func (w *SegmentWriter[E]) Close() error {
	return w.Flush()
}
