package journal

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/downfa11-org/journal/pkg/buffer"
	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

// SegmentOptions are the per-segment tunables that are not persisted in the descriptor.
type SegmentOptions struct {
	MaxEntrySize       int
	IndexIntervalBytes int
	CacheSize          int
	// Mapped reads sealed file segments through mmap.
	Mapped bool
}

type truncation struct {
	gen   uint64
	index uint64
}

// Segment is a bounded, contiguous range of the journal backed by one buffer.
// It owns its descriptor, position index and cache, and hands out one
// writer and any number of readers.
type Segment[E any] struct {
	opts   SegmentOptions
	codec  Codec[E]
	buffer buffer.Buffer
	index  *PositionIndex
	cache  *SegmentCache[E]
	writer *SegmentWriter[E]

	// immutable copies of descriptor fields, readable without mu
	id         uint64
	first      uint64
	maxSize    int64
	maxEntries uint64
	// readLimit is the largest payload a frame in this segment may carry:
	// the greater of the persisted and the configured entry limit
	readLimit int

	mu         sync.RWMutex // guards descriptor, view and closed
	descriptor Descriptor
	mapped     *buffer.Mapped
	closed     bool

	tail atomic.Int64  // end offset of the last complete frame
	last atomic.Uint64 // last written index, FirstIndex()-1 when empty

	// trailing counts bytes past tail found at recovery
	trailing int64

	truncMu sync.Mutex
	gen     atomic.Uint64
	history []truncation
}

// CreateSegment writes d to buf and returns an empty segment over it.
func CreateSegment[E any](buf buffer.Buffer, d Descriptor, opts SegmentOptions, codec Codec[E]) (*Segment[E], error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if d.MaxEntrySize == 0 && opts.MaxEntrySize > 0 {
		d.MaxEntrySize = uint32(opts.MaxEntrySize)
	}
	if err := buf.Truncate(0); err != nil {
		return nil, fmt.Errorf("%w: reset segment %d: %v", ErrStorage, d.ID, err)
	}
	if _, err := buf.WriteAt(d.Encode(), 0); err != nil {
		return nil, fmt.Errorf("%w: write descriptor %d: %v", ErrStorage, d.ID, err)
	}

	s := newSegment(buf, d, opts, codec)
	s.tail.Store(types.DescriptorSize)
	s.last.Store(d.Index - 1)
	return s, nil
}

// OpenSegment reads the descriptor from buf and rebuilds the segment's
// index and tail by scanning its frames. Scanning stops at the first frame
// that fails validation.
func OpenSegment[E any](buf buffer.Buffer, opts SegmentOptions, codec Codec[E]) (*Segment[E], error) {
	d, err := ReadDescriptor(buf)
	if err != nil {
		return nil, err
	}

	s := newSegment(buf, d, opts, codec)
	if err := s.recover(); err != nil {
		return nil, err
	}
	s.attachView()
	return s, nil
}

func newSegment[E any](buf buffer.Buffer, d Descriptor, opts SegmentOptions, codec Codec[E]) *Segment[E] {
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = int(d.MaxSegmentSize - types.DescriptorSize - types.FrameHeaderSize)
	}
	s := &Segment[E]{
		opts:       opts,
		codec:      codec,
		id:         d.ID,
		first:      d.Index,
		maxSize:    d.MaxSegmentSize,
		maxEntries: uint64(d.MaxEntries),
		readLimit:  max(opts.MaxEntrySize, int(d.MaxEntrySize)),
		buffer:     buf,
		descriptor: d,
		index:      NewPositionIndex(opts.IndexIntervalBytes),
		cache:      NewSegmentCache[E](opts.CacheSize, d.Index-1),
	}
	s.writer = newSegmentWriter(s)
	return s
}

func (s *Segment[E]) recover() error {
	var (
		header = make([]byte, types.FrameHeaderSize)
		size   = s.buffer.Size()
		offset = int64(types.DescriptorSize)
		index  = s.first
		count  uint64
	)

	for count < s.maxEntries {
		if offset+types.FrameHeaderSize > size {
			break
		}
		if _, err := s.buffer.ReadAt(header, offset); err != nil {
			return fmt.Errorf("read frame header at %d: %w", offset, err)
		}
		length, checksum := readFrameHeader(header)
		if !validLength(length, s.readLimit) || offset+frameSize(length) > size {
			break
		}
		payload := make([]byte, length)
		if _, err := s.buffer.ReadAt(payload, offset+types.FrameHeaderSize); err != nil {
			return fmt.Errorf("read frame at %d: %w", offset, err)
		}
		if !util.ChecksumMatches(payload, checksum) {
			break
		}

		s.index.Index(index, offset)
		offset += frameSize(length)
		index++
		count++
	}

	s.tail.Store(offset)
	s.last.Store(index - 1)
	s.cache.Reset(index - 1)
	s.trailing = size - offset
	return nil
}

// discardTrailing drops bytes past the last valid frame, left by a torn write.
func (s *Segment[E]) discardTrailing() error {
	if s.trailing == 0 {
		return nil
	}
	if err := s.buffer.Truncate(s.tail.Load()); err != nil {
		return err
	}
	s.trailing = 0
	return nil
}

func (s *Segment[E]) Descriptor() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descriptor
}

func (s *Segment[E]) ID() uint64 {
	return s.id
}

func (s *Segment[E]) FirstIndex() uint64 {
	return s.first
}

func (s *Segment[E]) LastIndex() uint64 {
	return s.last.Load()
}

func (s *Segment[E]) Length() uint64 {
	return s.last.Load() + 1 - s.first
}

func (s *Segment[E]) IsEmpty() bool {
	return s.Length() == 0
}

// Size is the number of bytes holding the descriptor and complete frames.
func (s *Segment[E]) Size() int64 {
	return s.tail.Load()
}

func (s *Segment[E]) IsFull() bool {
	return s.Length() >= s.maxEntries || s.Size()+types.FrameHeaderSize >= s.maxSize
}

func (s *Segment[E]) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descriptor.Locked
}

func (s *Segment[E]) Path() string {
	if f, ok := s.buffer.(*buffer.File); ok {
		return f.Path()
	}
	return ""
}

func (s *Segment[E]) Stats() types.SegmentStats {
	return types.SegmentStats{
		ID:         s.ID(),
		FirstIndex: s.FirstIndex(),
		LastIndex:  s.LastIndex(),
		Size:       s.Size(),
		Sealed:     s.Sealed(),
		Path:       s.Path(),
	}
}

// Writer returns the segment's only writer.
func (s *Segment[E]) Writer() *SegmentWriter[E] {
	return s.writer
}

// OpenReader returns a reader positioned before the first entry.
func (s *Segment[E]) OpenReader() *SegmentReader[E] {
	return newSegmentReader(s)
}

func (s *Segment[E]) Flush() error {
	if err := s.buffer.Flush(); err != nil {
		return fmt.Errorf("%w: flush segment %d: %v", ErrStorage, s.ID(), err)
	}
	return nil
}

// publish makes the frames up to tail, ending with index last, visible.
func (s *Segment[E]) publish(tail int64, last uint64) {
	s.tail.Store(tail)
	s.last.Store(last)
}

func (s *Segment[E]) readAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.mapped != nil {
		return s.mapped.ReadAt(p, off)
	}
	return s.buffer.ReadAt(p, off)
}

// endOf returns the offset right after the frame of index.
func (s *Segment[E]) endOf(index uint64) (int64, error) {
	pos, ok := s.index.Lookup(index)
	cur, offset := s.FirstIndex(), int64(types.DescriptorSize)
	if ok {
		cur, offset = pos.Index, int64(pos.Offset)
	}

	header := make([]byte, types.FrameHeaderSize)
	tail := s.tail.Load()
	for {
		if offset+types.FrameHeaderSize > tail {
			return 0, fmt.Errorf("%w: index %d not found in segment %d", ErrStorage, index, s.ID())
		}
		if _, err := s.readAt(header, offset); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		length, _ := readFrameHeader(header)
		offset += frameSize(length)
		if cur == index {
			return offset, nil
		}
		cur++
	}
}

// recordTruncation tells readers that everything above index was discarded.
// Records at or above index are dropped since the new one bounds every query
// that would see them, so history holds strictly increasing indices and
// never grows past the segment's index range.
func (s *Segment[E]) recordTruncation(index uint64) {
	s.truncMu.Lock()
	defer s.truncMu.Unlock()

	n := len(s.history)
	for n > 0 && s.history[n-1].index >= index {
		n--
	}
	gen := s.gen.Load() + 1
	s.history = append(s.history[:n], truncation{gen: gen, index: index})
	s.gen.Store(gen)
}

// truncatedSince returns the current generation and the lowest index
// truncated to after gen.
func (s *Segment[E]) truncatedSince(gen uint64) (uint64, uint64, bool) {
	cur := s.gen.Load()
	if cur == gen {
		return cur, 0, false
	}

	s.truncMu.Lock()
	defer s.truncMu.Unlock()

	// indices increase along history, so the first record after gen is the lowest
	i := sort.Search(len(s.history), func(i int) bool {
		return s.history[i].gen > gen
	})
	floor := uint64(math.MaxUint64)
	if i < len(s.history) {
		floor = s.history[i].index
	}
	return s.gen.Load(), floor, true
}

func (s *Segment[E]) writeDescriptor(d Descriptor) error {
	d.Updated = time.Now().UnixMilli()
	if _, err := s.buffer.WriteAt(d.Encode(), 0); err != nil {
		return err
	}
	s.descriptor = d
	return s.buffer.Flush()
}

// Seal marks the segment read-only in its descriptor. File segments opened
// with Mapped switch their readers to an mmap view.
func (s *Segment[E]) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.descriptor.Locked {
		return nil
	}

	d := s.descriptor
	d.Locked = true
	if err := s.writeDescriptor(d); err != nil {
		return fmt.Errorf("%w: seal segment %d: %v", ErrStorage, d.ID, err)
	}

	s.attachView()
	return nil
}

// attachView switches reads of a sealed file segment to an mmap view.
// The caller holds mu or has exclusive access.
func (s *Segment[E]) attachView() {
	if s.mapped != nil || !s.opts.Mapped || !s.descriptor.Locked {
		return
	}
	f, ok := s.buffer.(*buffer.File)
	if !ok {
		return
	}
	view, err := buffer.OpenMapped(f.Path())
	if err != nil {
		util.Warn("segment %d: mmap unavailable, reading through file: %v", s.id, err)
		return
	}
	s.mapped = view
}

// raiseEntryLimit records a configured entry limit larger than the persisted
// one, so later opens accept the bigger frames the writer may now append.
func (s *Segment[E]) raiseEntryLimit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.MaxEntrySize <= int(s.descriptor.MaxEntrySize) {
		return nil
	}
	d := s.descriptor
	d.MaxEntrySize = uint32(s.opts.MaxEntrySize)
	return s.writeDescriptor(d)
}

// Unseal makes a sealed segment writable again, which truncation needs.
func (s *Segment[E]) Unseal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.mapped != nil {
		if err := s.mapped.Close(); err != nil {
			util.Error("segment %d: close mapped view: %v", s.descriptor.ID, err)
		}
		s.mapped = nil
	}
	if !s.descriptor.Locked {
		return nil
	}

	d := s.descriptor
	d.Locked = false
	if err := s.writeDescriptor(d); err != nil {
		return fmt.Errorf("%w: unseal segment %d: %v", ErrStorage, d.ID, err)
	}
	return nil
}

func (s *Segment[E]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.mapped != nil {
		errs = append(errs, s.mapped.Close())
		s.mapped = nil
	}
	errs = append(errs, s.buffer.Close())
	return errors.Join(errs...)
}

// Delete closes the segment and removes its backing storage.
func (s *Segment[E]) Delete() error {
	if err := s.Close(); err != nil {
		util.Error("segment %d: close before delete: %v", s.ID(), err)
	}
	if f, ok := s.buffer.(*buffer.File); ok {
		return f.Remove()
	}
	return nil
}

// discard deletes the segment as part of a truncation so that open readers
// stop instead of moving on to a successor.
func (s *Segment[E]) discard() error {
	s.cache.Truncate(s.FirstIndex() - 1)
	s.recordTruncation(s.FirstIndex() - 1)
	return s.Delete()
}
