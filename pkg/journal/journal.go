// Package journal implements a segmented, append-only log of framed entries
// used as the durable substrate of a Raft replicated log.
//
// A Journal is an ordered list of segments. Only the last segment accepts
// writes; earlier ones are sealed. Entries are addressed by a 1-based,
// gap-free log index. One Writer appends and truncates, any number of
// Readers iterate independently.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/downfa11-org/journal/pkg/buffer"
	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/metrics"
	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

const segmentSuffix = ".log"

type Journal[E any] struct {
	cfg   config.Config
	codec Codec[E]
	opts  SegmentOptions

	mu       sync.RWMutex
	segments []*Segment[E]
	closed   bool

	writer *Writer[E]
}

// Open recovers the journal described by cfg, or creates it when no
// segments exist. Storage that does not match cfg is refused with a
// *RecoveryError.
func Open[E any](cfg *config.Config, codec Codec[E]) (*Journal[E], error) {
	c := *cfg
	c.Normalize()

	j := &Journal[E]{
		cfg:   c,
		codec: codec,
		opts: SegmentOptions{
			MaxEntrySize:       c.MaxEntrySize,
			IndexIntervalBytes: c.IndexIntervalBytes,
			CacheSize:          c.CacheCapacity(),
			Mapped:             c.StorageLevel == types.StorageMapped,
		},
	}
	j.writer = &Writer[E]{journal: j}

	if c.StorageLevel.Persistent() {
		if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrStorage, c.LogDir, err)
		}
	}

	if err := j.recover(); err != nil {
		metrics.RecoveryFailures.WithLabelValues(c.JournalName).Inc()
		return nil, err
	}
	metrics.Segments.WithLabelValues(c.JournalName).Set(float64(len(j.segments)))

	util.Info("journal %s opened (%s): %d segment(s), indices %d..%d",
		c.JournalName, c.StorageLevel, len(j.segments), j.FirstIndex(), j.LastIndex())
	return j, nil
}

func (j *Journal[E]) Name() string {
	return j.cfg.JournalName
}

// Config returns the normalized configuration the journal was opened with.
func (j *Journal[E]) Config() config.Config {
	return j.cfg
}

// SegmentPath is the file holding segment id.
func (j *Journal[E]) SegmentPath(id uint64) string {
	return filepath.Join(j.cfg.LogDir, fmt.Sprintf("%s-%d%s", j.cfg.JournalName, id, segmentSuffix))
}

// FirstIndex is the first index still held by the journal.
func (j *Journal[E]) FirstIndex() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.segments) == 0 {
		return 0
	}
	return j.segments[0].FirstIndex()
}

// LastIndex is the last written index, FirstIndex-1 when empty.
func (j *Journal[E]) LastIndex() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.segments) == 0 {
		return 0
	}
	return j.segments[len(j.segments)-1].LastIndex()
}

func (j *Journal[E]) IsEmpty() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.segments) == 0 {
		return true
	}
	return j.segments[len(j.segments)-1].LastIndex() < j.segments[0].FirstIndex()
}

// SegmentFor returns the segment whose range covers index: the one with
// the greatest first index not above it.
func (j *Journal[E]) SegmentFor(index uint64) (*Segment[E], error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrClosed
	}
	if len(j.segments) == 0 {
		return nil, fmt.Errorf("%w: journal %s has no segments", ErrStorage, j.cfg.JournalName)
	}
	if index < j.segments[0].FirstIndex() {
		return nil, fmt.Errorf("%w: %d precedes first index %d", ErrIndexOutOfRange, index, j.segments[0].FirstIndex())
	}

	i := sort.Search(len(j.segments), func(i int) bool {
		return j.segments[i].FirstIndex() > index
	})
	return j.segments[i-1], nil
}

// segmentStarting returns the segment beginning exactly at index.
func (j *Journal[E]) segmentStarting(index uint64) *Segment[E] {
	j.mu.RLock()
	defer j.mu.RUnlock()

	i := sort.Search(len(j.segments), func(i int) bool {
		return j.segments[i].FirstIndex() >= index
	})
	if i < len(j.segments) && j.segments[i].FirstIndex() == index {
		return j.segments[i]
	}
	return nil
}

func (j *Journal[E]) tail() (*Segment[E], error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrClosed
	}
	if len(j.segments) == 0 {
		return nil, fmt.Errorf("%w: journal %s has no segments", ErrStorage, j.cfg.JournalName)
	}
	return j.segments[len(j.segments)-1], nil
}

// Segments summarizes every segment in index order.
func (j *Journal[E]) Segments() []types.SegmentStats {
	j.mu.RLock()
	defer j.mu.RUnlock()

	stats := make([]types.SegmentStats, 0, len(j.segments))
	for _, seg := range j.segments {
		stats = append(stats, seg.Stats())
	}
	return stats
}

// Writer returns the journal's single writer.
func (j *Journal[E]) Writer() *Writer[E] {
	return j.writer
}

// OpenReader returns a reader whose first Next yields index.
func (j *Journal[E]) OpenReader(index uint64) (*Reader[E], error) {
	r := &Reader[E]{journal: j}
	if err := r.ResetTo(index); err != nil {
		return nil, err
	}
	return r, nil
}

func (j *Journal[E]) Append(entry E) (Indexed[E], error) {
	return j.writer.Append(entry)
}

// Truncate discards every entry after index.
func (j *Journal[E]) Truncate(index uint64) error {
	return j.writer.Truncate(index)
}

// Compact removes leading segments whose entries all lie below index.
// The tail segment is never removed.
func (j *Journal[E]) Compact(index uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	removed := 0
	for len(j.segments) > 1 && j.segments[1].FirstIndex() <= index {
		seg := j.segments[0]
		if err := seg.Delete(); err != nil {
			util.Error("journal %s: delete segment %d: %v", j.cfg.JournalName, seg.ID(), err)
		}
		j.segments[0] = nil
		j.segments = j.segments[1:]
		removed++
	}

	if removed > 0 {
		metrics.Compactions.WithLabelValues(j.cfg.JournalName).Add(float64(removed))
		metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(float64(len(j.segments)))
		util.Info("journal %s compacted %d segment(s) below %d, first index now %d",
			j.cfg.JournalName, removed, index, j.segments[0].FirstIndex())
	}
	return nil
}

func (j *Journal[E]) Flush() error {
	return j.writer.Flush()
}

// Close flushes and releases every segment.
func (j *Journal[E]) Close() error {
	j.writer.mu.Lock()
	defer j.writer.mu.Unlock()
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	var errs []error
	for _, seg := range j.segments {
		if err := seg.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := seg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close segment %d: %w", seg.ID(), err))
		}
	}
	metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(0)
	return errors.Join(errs...)
}

// Delete closes the journal and removes every segment file.
func (j *Journal[E]) Delete() error {
	if err := j.Close(); err != nil {
		util.Error("journal %s: close before delete: %v", j.cfg.JournalName, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for _, seg := range j.segments {
		if err := seg.Delete(); err != nil {
			errs = append(errs, err)
		}
	}
	j.segments = nil
	return errors.Join(errs...)
}

func (j *Journal[E]) newBuffer(id uint64) (buffer.Buffer, error) {
	if !j.cfg.StorageLevel.Persistent() {
		return buffer.NewMemory(int(min(j.cfg.MaxSegmentSize, 1<<20))), nil
	}
	return buffer.OpenFile(j.SegmentPath(id))
}

func (j *Journal[E]) createSegment(id, index uint64) (*Segment[E], error) {
	buf, err := j.newBuffer(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open segment %d: %v", ErrStorage, id, err)
	}

	d := NewDescriptor(id, index, j.cfg.MaxSegmentSize, j.cfg.MaxEntriesPerSegment)
	seg, err := CreateSegment(buf, d, j.opts, j.codec)
	if err == nil {
		err = seg.Flush()
	}
	if err != nil {
		if cerr := buf.Close(); cerr != nil {
			util.Error("failed to close segment %d: %v", id, cerr)
		}
		return nil, err
	}

	util.Debug("journal %s created segment %d at index %d", j.cfg.JournalName, id, index)
	return seg, nil
}

// roll seals the full tail and starts a new segment after it.
func (j *Journal[E]) roll(full *Segment[E]) (*Segment[E], error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}
	if err := full.Seal(); err != nil {
		return nil, err
	}

	seg, err := j.createSegment(full.ID()+1, full.LastIndex()+1)
	if err != nil {
		if uerr := full.Unseal(); uerr != nil {
			util.Error("journal %s: unseal segment %d: %v", j.cfg.JournalName, full.ID(), uerr)
		}
		return nil, err
	}
	j.segments = append(j.segments, seg)

	metrics.Rollovers.WithLabelValues(j.cfg.JournalName).Inc()
	metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(float64(len(j.segments)))
	util.Debug("journal %s rolled segment %d (%d..%d) over to %d",
		j.cfg.JournalName, full.ID(), full.FirstIndex(), full.LastIndex(), seg.ID())
	return seg, nil
}

// truncate discards segments that start after index and cuts the owning
// segment back to index. The caller holds the writer lock.
func (j *Journal[E]) truncate(index uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if len(j.segments) == 0 {
		return fmt.Errorf("%w: journal %s has no segments", ErrStorage, j.cfg.JournalName)
	}
	if index >= j.segments[len(j.segments)-1].LastIndex() {
		return nil
	}
	if first := j.segments[0].FirstIndex(); index+1 < first {
		return fmt.Errorf("%w: %d precedes first index %d", ErrIndexOutOfRange, index, first)
	}

	for len(j.segments) > 1 && j.segments[len(j.segments)-1].FirstIndex() > index {
		seg := j.segments[len(j.segments)-1]
		if err := seg.discard(); err != nil {
			util.Error("journal %s: delete segment %d: %v", j.cfg.JournalName, seg.ID(), err)
		}
		j.segments[len(j.segments)-1] = nil
		j.segments = j.segments[:len(j.segments)-1]
	}

	tail := j.segments[len(j.segments)-1]
	if err := tail.Unseal(); err != nil {
		return err
	}
	if err := tail.Writer().Truncate(index); err != nil {
		return err
	}

	metrics.Truncations.WithLabelValues(j.cfg.JournalName).Inc()
	metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(float64(len(j.segments)))
	util.Info("journal %s truncated to index %d", j.cfg.JournalName, index)
	return nil
}

// reset drops every segment and starts over with an empty segment at
// index. The caller holds the writer lock.
func (j *Journal[E]) reset(index uint64) error {
	if index == 0 {
		return fmt.Errorf("%w: journal indices start at 1", ErrIndexOutOfRange)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	var nextID uint64 = 1
	if n := len(j.segments); n > 0 {
		nextID = j.segments[n-1].ID() + 1
	}
	for _, seg := range j.segments {
		if err := seg.discard(); err != nil {
			util.Error("journal %s: delete segment %d: %v", j.cfg.JournalName, seg.ID(), err)
		}
	}
	j.segments = nil

	seg, err := j.createSegment(nextID, index)
	if err != nil {
		metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(0)
		return err
	}
	j.segments = []*Segment[E]{seg}

	metrics.Segments.WithLabelValues(j.cfg.JournalName).Set(1)
	util.Info("journal %s reset to index %d", j.cfg.JournalName, index)
	return nil
}
