package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/downfa11-org/journal/pkg/metrics"
)

// Writer appends to whichever segment is currently the tail, rolling over
// to a new segment when the tail is full.
type Writer[E any] struct {
	mu      sync.Mutex
	journal *Journal[E]
}

func (w *Writer[E]) LastIndex() uint64 {
	return w.journal.LastIndex()
}

func (w *Writer[E]) NextIndex() uint64 {
	return w.journal.LastIndex() + 1
}

// LastEntry returns the last entry in the journal, if any.
func (w *Writer[E]) LastEntry() (Indexed[E], bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tail, err := w.journal.tail()
	if err != nil {
		return Indexed[E]{}, false
	}
	return tail.Writer().LastEntry()
}

// Append writes entry at NextIndex.
func (w *Writer[E]) Append(entry E) (Indexed[E], error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	payload, err := w.journal.codec.Encode(entry)
	if err != nil {
		return Indexed[E]{}, fmt.Errorf("encode entry: %w", err)
	}

	tail, err := w.journal.tail()
	if err != nil {
		return Indexed[E]{}, err
	}

	written, err := tail.Writer().AppendEncoded(entry, payload)
	if errors.Is(err, ErrSegmentFull) {
		if tail.IsEmpty() {
			return Indexed[E]{}, fmt.Errorf("%w: %d bytes do not fit an empty segment", ErrEntryTooLarge, len(payload))
		}
		if tail, err = w.journal.roll(tail); err != nil {
			return Indexed[E]{}, err
		}
		written, err = tail.Writer().AppendEncoded(entry, payload)
		if errors.Is(err, ErrSegmentFull) {
			return Indexed[E]{}, fmt.Errorf("%w: %d bytes do not fit an empty segment", ErrEntryTooLarge, len(payload))
		}
	}
	if err != nil {
		return Indexed[E]{}, err
	}

	if w.journal.cfg.FlushOnCommit {
		if err := tail.Flush(); err != nil {
			return Indexed[E]{}, err
		}
	}

	metrics.ObserveAppend(w.journal.cfg.JournalName, int(frameSize(written.Size)), time.Since(start).Seconds())
	return written, nil
}

// AppendIndexed appends entry.Entry, which must carry NextIndex.
func (w *Writer[E]) AppendIndexed(entry Indexed[E]) (Indexed[E], error) {
	if next := w.NextIndex(); entry.Index != next {
		return Indexed[E]{}, fmt.Errorf("%w: got %d, next is %d", ErrIndexMismatch, entry.Index, next)
	}
	return w.Append(entry.Entry)
}

// Truncate discards every entry after index, across segments if needed.
func (w *Writer[E]) Truncate(index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.journal.truncate(index)
}

// Reset discards the whole journal so the next append lands at index.
// It is used when a snapshot replaces the log.
func (w *Writer[E]) Reset(index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.journal.reset(index)
}

func (w *Writer[E]) Flush() error {
	tail, err := w.journal.tail()
	if err != nil {
		return err
	}
	return tail.Flush()
}

func (w *Writer[E]) Close() error {
	return w.Flush()
}
