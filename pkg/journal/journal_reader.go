package journal

// Reader iterates the journal across segment boundaries. When the segment
// under it is exhausted it moves to the segment starting at NextIndex, if
// one exists. A reader whose current entry is truncated away stays
// exhausted until it is reset.
type Reader[E any] struct {
	journal *Journal[E]
	seg     *Segment[E]
	reader  *SegmentReader[E]
	current *Indexed[E]
	closed  bool
}

func (r *Reader[E]) CurrentIndex() uint64 {
	return r.reader.CurrentIndex()
}

// CurrentEntry returns the entry last returned by Next.
func (r *Reader[E]) CurrentEntry() (Indexed[E], bool) {
	if r.current == nil || r.current.Index != r.reader.CurrentIndex() {
		return Indexed[E]{}, false
	}
	return *r.current, true
}

func (r *Reader[E]) NextIndex() uint64 {
	return r.reader.NextIndex()
}

func (r *Reader[E]) HasNext() bool {
	if r.closed {
		return false
	}
	if r.reader.HasNext() {
		return true
	}
	if r.reader.Truncated() {
		return false
	}

	next := r.journal.segmentStarting(r.reader.NextIndex())
	if next == nil || next == r.seg {
		return false
	}
	r.reader.Close()
	r.seg = next
	r.reader = next.OpenReader()
	return r.reader.HasNext()
}

func (r *Reader[E]) Next() (Indexed[E], error) {
	if r.closed {
		return Indexed[E]{}, ErrClosed
	}
	if !r.HasNext() {
		return Indexed[E]{}, ErrNoSuchEntry
	}
	e, err := r.reader.Next()
	if err != nil {
		return Indexed[E]{}, err
	}
	r.current = &e
	return e, nil
}

// Reset rewinds to the first entry of the journal.
func (r *Reader[E]) Reset() error {
	return r.ResetTo(r.journal.FirstIndex())
}

// ResetTo positions the reader so that the next entry returned is index.
// Seeking past the last entry leaves the reader at the end of the journal.
func (r *Reader[E]) ResetTo(index uint64) error {
	if r.closed {
		return ErrClosed
	}
	seg, err := r.journal.SegmentFor(index)
	if err != nil {
		return err
	}
	if seg != r.seg || r.reader == nil {
		if r.reader != nil {
			r.reader.Close()
		}
		r.seg = seg
		r.reader = seg.OpenReader()
	}
	r.current = nil
	return r.reader.ResetTo(index)
}

// Truncated reports whether the entry under the reader was discarded.
func (r *Reader[E]) Truncated() bool {
	return r.reader.Truncated()
}

func (r *Reader[E]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.current = nil
	return r.reader.Close()
}
