package journal

import (
	"errors"
	"fmt"
	"io"

	"github.com/downfa11-org/journal/pkg/metrics"
	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

type readerState int

const (
	readerPositioned readerState = iota // no entry read ahead
	readerLookahead                     // next holds the following entry
	readerExhausted                     // nothing readable past current
)

// SegmentReader iterates the entries of one segment. Each reader keeps its
// own position and read-ahead window, so readers never affect each other or
// the writer. A reader is not safe for concurrent use.
type SegmentReader[E any] struct {
	seg   *Segment[E]
	state readerState

	current  *Indexed[E]
	position int64 // offset of the frame after current

	next    *Indexed[E]
	nextErr error
	nextEnd int64

	window      []byte
	windowStart int64

	gen       uint64
	truncated bool
	closed    bool
}

func newSegmentReader[E any](seg *Segment[E]) *SegmentReader[E] {
	r := &SegmentReader[E]{seg: seg}
	r.Reset()
	return r
}

// CurrentIndex is the index of the entry last returned by Next, or
// FirstIndex-1 before the first one.
func (r *SegmentReader[E]) CurrentIndex() uint64 {
	if r.current == nil {
		return r.seg.FirstIndex() - 1
	}
	return r.current.Index
}

// CurrentEntry returns the entry last returned by Next. It reports false
// before the first read and right after a seek.
func (r *SegmentReader[E]) CurrentEntry() (Indexed[E], bool) {
	if r.current == nil || r.current.IsPlaceholder() {
		return Indexed[E]{}, false
	}
	return *r.current, true
}

func (r *SegmentReader[E]) NextIndex() uint64 {
	return r.CurrentIndex() + 1
}

// Truncated reports whether the entry under the reader was discarded by a
// truncation. A truncated reader stays exhausted until Reset or ResetTo.
func (r *SegmentReader[E]) Truncated() bool {
	r.sync()
	return r.truncated
}

func (r *SegmentReader[E]) HasNext() bool {
	if r.closed {
		return false
	}
	r.sync()
	if r.truncated {
		return false
	}
	if r.state == readerLookahead {
		return true
	}
	if r.readNext(true) {
		r.state = readerLookahead
		return true
	}
	r.state = readerExhausted
	return false
}

// Next returns the following entry. A payload that passed its checksum but
// fails to decode is reported as ErrDecode and the reader does not advance.
func (r *SegmentReader[E]) Next() (Indexed[E], error) {
	if r.closed {
		return Indexed[E]{}, ErrClosed
	}
	if !r.HasNext() {
		return Indexed[E]{}, ErrNoSuchEntry
	}
	if r.nextErr != nil {
		return Indexed[E]{}, r.nextErr
	}
	r.advance()
	return *r.current, nil
}

// Reset positions the reader before the first entry of the segment.
func (r *SegmentReader[E]) Reset() {
	r.current = nil
	r.position = types.DescriptorSize
	r.dropLookahead()
	r.dropWindow()
	r.truncated = false
	r.gen = r.seg.gen.Load()
}

// ResetTo positions the reader so that the next entry returned is index,
// or the first entry after it still present in the segment.
func (r *SegmentReader[E]) ResetTo(index uint64) error {
	if r.closed {
		return ErrClosed
	}
	r.Reset()
	if index <= r.seg.FirstIndex() {
		return nil
	}

	if _, offset, ok := r.seg.cache.Get(index); ok {
		r.current = placeholder[E](index - 1)
		r.position = offset
	} else if pos, ok := r.seg.index.Lookup(index - 1); ok && pos.Index > r.seg.FirstIndex() {
		r.current = placeholder[E](pos.Index - 1)
		r.position = int64(pos.Offset)
	}

	for r.NextIndex() < index {
		r.sync()
		if r.truncated || !r.readNext(false) {
			break
		}
		r.advance()
	}
	return nil
}

func (r *SegmentReader[E]) Close() error {
	r.closed = true
	r.current = nil
	r.dropLookahead()
	r.window = nil
	return nil
}

// sync drops read-ahead state after a truncation and marks the reader
// truncated when its current entry was discarded.
func (r *SegmentReader[E]) sync() {
	gen, floor, changed := r.seg.truncatedSince(r.gen)
	if !changed {
		return
	}
	r.gen = gen
	r.dropLookahead()
	r.dropWindow()
	if r.current != nil && r.current.Index > floor {
		r.truncated = true
		r.state = readerExhausted
	}
}

func (r *SegmentReader[E]) advance() {
	if r.next.IsPlaceholder() {
		r.current = placeholder[E](r.next.Index)
	} else {
		r.current = r.next
	}
	r.position = r.nextEnd
	r.dropLookahead()
}

func (r *SegmentReader[E]) dropLookahead() {
	r.next = nil
	r.nextErr = nil
	r.nextEnd = 0
	r.state = readerPositioned
}

func (r *SegmentReader[E]) dropWindow() {
	r.window = r.window[:0]
	r.windowStart = 0
}

// readNext loads the frame at position into next. It returns false when no
// valid frame lies between position and the segment's published tail.
func (r *SegmentReader[E]) readNext(decode bool) bool {
	tail := r.seg.tail.Load()
	if r.position+types.FrameHeaderSize > tail {
		return false
	}
	index := r.NextIndex()
	if index > r.seg.cache.Boundary() {
		return false
	}
	if decode {
		if e, offset, ok := r.seg.cache.Get(index); ok && offset == r.position {
			r.next = &e
			r.nextEnd = offset + frameSize(e.Size)
			return true
		}
	}

	maxEntrySize := r.seg.readLimit
	if err := r.fill(r.position, types.FrameHeaderSize+int64(maxEntrySize), tail); err != nil {
		util.Debug("segment %d: read at %d: %v", r.seg.ID(), r.position, err)
		return false
	}

	buf := r.window[r.position-r.windowStart:]
	if len(buf) < types.FrameHeaderSize {
		return false
	}
	length, checksum := readFrameHeader(buf)
	end := r.position + frameSize(length)
	if !validLength(length, maxEntrySize) || end > tail || int64(len(buf)) < frameSize(length) {
		metrics.InvalidFrames.Inc()
		util.Warn("segment %d: invalid frame length %d at %d", r.seg.ID(), length, r.position)
		return false
	}
	payload := buf[types.FrameHeaderSize:frameSize(length)]
	if !util.ChecksumMatches(payload, checksum) {
		metrics.InvalidFrames.Inc()
		util.Warn("segment %d: checksum mismatch at %d", r.seg.ID(), r.position)
		return false
	}

	r.nextEnd = end
	if !decode {
		r.next = placeholder[E](index)
		return true
	}

	entry, err := r.seg.codec.Decode(append([]byte(nil), payload...))
	r.next = &Indexed[E]{Index: index, Entry: entry, Size: length}
	if err != nil {
		r.nextErr = fmt.Errorf("%w: entry %d: %v", ErrDecode, index, err)
	}
	return true
}

// fill makes the window cover [off, off+n) clipped to tail, reading ahead
// up to twice a maximum frame.
func (r *SegmentReader[E]) fill(off, n, tail int64) error {
	want := min(off+n, tail)
	if off >= r.windowStart && want <= r.windowStart+int64(len(r.window)) {
		return nil
	}

	size := 2 * (types.FrameHeaderSize + int64(r.seg.readLimit))
	if int64(cap(r.window)) < size {
		r.window = make([]byte, 0, size)
	}
	limit := min(tail-off, size)
	r.window = r.window[:limit]
	read, err := r.seg.readAt(r.window, off)
	r.window = r.window[:read]
	r.windowStart = off
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
