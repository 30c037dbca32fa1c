package journal_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/downfa11-org/journal/pkg/buffer"
	"github.com/downfa11-org/journal/pkg/journal"
	"github.com/downfa11-org/journal/pkg/types"
)

func setupSegment(t *testing.T, maxEntries int, maxSize int64, opts journal.SegmentOptions) (*journal.Segment[string], *buffer.Memory) {
	t.Helper()
	if opts.MaxEntrySize == 0 {
		opts.MaxEntrySize = 64
	}

	buf := buffer.NewMemory(0)
	d := journal.NewDescriptor(1, 1, maxSize, maxEntries)
	seg, err := journal.CreateSegment[string](buf, d, opts, journal.StringCodec{})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	t.Cleanup(func() { _ = seg.Close() })
	return seg, buf
}

func appendN(t *testing.T, w *journal.SegmentWriter[string], from, to int) {
	t.Helper()
	for i := from; i <= to; i++ {
		e, err := w.Append(fmt.Sprintf("entry-%d", i))
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if e.Index != uint64(i) {
			t.Fatalf("expected index %d, got %d", i, e.Index)
		}
	}
}

func TestSegmentAppendAndRead(t *testing.T) {
	seg, _ := setupSegment(t, 16, 4096, journal.SegmentOptions{CacheSize: 4})
	appendN(t, seg.Writer(), 1, 3)

	if seg.LastIndex() != 3 || seg.Length() != 3 {
		t.Fatalf("expected 3 entries ending at 3, got length %d last %d", seg.Length(), seg.LastIndex())
	}

	r := seg.OpenReader()
	defer r.Close()

	for i := 1; i <= 3; i++ {
		if !r.HasNext() {
			t.Fatalf("expected entry %d", i)
		}
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if e.Index != uint64(i) || e.Entry != fmt.Sprintf("entry-%d", i) {
			t.Errorf("unexpected entry %+v", e)
		}
		if r.CurrentIndex() != uint64(i) {
			t.Errorf("expected current index %d, got %d", i, r.CurrentIndex())
		}
	}

	if r.HasNext() {
		t.Errorf("expected reader to be exhausted")
	}
	if _, err := r.Next(); !errors.Is(err, journal.ErrNoSuchEntry) {
		t.Errorf("expected ErrNoSuchEntry, got %v", err)
	}

	// new appends become visible to the same reader
	appendN(t, seg.Writer(), 4, 4)
	if e, err := r.Next(); err != nil || e.Index != 4 {
		t.Errorf("expected entry 4 after append, got %+v, %v", e, err)
	}
}

func TestSegmentReaderResetTo(t *testing.T) {
	tests := []struct {
		name string
		opts journal.SegmentOptions
	}{
		{"dense index", journal.SegmentOptions{IndexIntervalBytes: 1}},
		{"cache and sparse index", journal.SegmentOptions{CacheSize: 4, IndexIntervalBytes: 100}},
		{"linear scan", journal.SegmentOptions{IndexIntervalBytes: 1 << 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, _ := setupSegment(t, 32, 8192, tt.opts)
			appendN(t, seg.Writer(), 1, 20)

			r := seg.OpenReader()
			defer r.Close()

			for i := 1; i <= 20; i++ {
				if err := r.ResetTo(uint64(i)); err != nil {
					t.Fatalf("ResetTo(%d) failed: %v", i, err)
				}
				if r.NextIndex() != uint64(i) {
					t.Fatalf("expected next index %d, got %d", i, r.NextIndex())
				}
				e, err := r.Next()
				if err != nil {
					t.Fatalf("Next after ResetTo(%d) failed: %v", i, err)
				}
				if e.Index != uint64(i) || e.Entry != fmt.Sprintf("entry-%d", i) {
					t.Errorf("ResetTo(%d) read %+v", i, e)
				}
			}

			if err := r.ResetTo(50); err != nil {
				t.Fatalf("ResetTo past the end failed: %v", err)
			}
			if r.HasNext() {
				t.Errorf("expected no entry past the end")
			}
		})
	}
}

func TestSegmentWriterLimits(t *testing.T) {
	t.Run("max entries", func(t *testing.T) {
		seg, _ := setupSegment(t, 2, 4096, journal.SegmentOptions{})
		appendN(t, seg.Writer(), 1, 2)
		if !seg.IsFull() {
			t.Errorf("expected segment to report full")
		}
		if _, err := seg.Writer().Append("x"); !errors.Is(err, journal.ErrSegmentFull) {
			t.Errorf("expected ErrSegmentFull, got %v", err)
		}
	})

	t.Run("max size", func(t *testing.T) {
		// room for exactly two 10 byte entries
		seg, _ := setupSegment(t, 16, types.DescriptorSize+2*(types.FrameHeaderSize+10), journal.SegmentOptions{})
		for i := 0; i < 2; i++ {
			if _, err := seg.Writer().Append(strings.Repeat("a", 10)); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		if _, err := seg.Writer().Append("b"); !errors.Is(err, journal.ErrSegmentFull) {
			t.Errorf("expected ErrSegmentFull, got %v", err)
		}
	})

	t.Run("entry size", func(t *testing.T) {
		seg, _ := setupSegment(t, 16, 4096, journal.SegmentOptions{MaxEntrySize: 64})
		if _, err := seg.Writer().Append(strings.Repeat("z", 65)); !errors.Is(err, journal.ErrEntryTooLarge) {
			t.Errorf("expected ErrEntryTooLarge, got %v", err)
		}
		if _, err := seg.Writer().Append(""); !errors.Is(err, journal.ErrEmptyEntry) {
			t.Errorf("expected ErrEmptyEntry, got %v", err)
		}
		if seg.LastIndex() != 0 {
			t.Errorf("rejected appends must not consume an index, last is %d", seg.LastIndex())
		}
	})

	t.Run("indexed", func(t *testing.T) {
		seg, _ := setupSegment(t, 16, 4096, journal.SegmentOptions{})
		if _, err := seg.Writer().AppendIndexed(journal.Indexed[string]{Index: 2, Entry: "x"}); !errors.Is(err, journal.ErrIndexMismatch) {
			t.Errorf("expected ErrIndexMismatch, got %v", err)
		}
		if e, err := seg.Writer().AppendIndexed(journal.Indexed[string]{Index: 1, Entry: "x"}); err != nil || e.Index != 1 {
			t.Errorf("AppendIndexed = %+v, %v", e, err)
		}
	})
}

func TestSegmentTruncate(t *testing.T) {
	seg, _ := setupSegment(t, 16, 4096, journal.SegmentOptions{CacheSize: 8, IndexIntervalBytes: 1})
	w := seg.Writer()
	appendN(t, w, 1, 5)

	past := seg.OpenReader()
	defer past.Close()
	for i := 0; i < 4; i++ {
		if _, err := past.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}

	// reads 1 and 2 and holds 3 as lookahead
	behind := seg.OpenReader()
	defer behind.Close()
	for i := 0; i < 2; i++ {
		if _, err := behind.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if !behind.HasNext() {
		t.Fatalf("expected lookahead of entry 3")
	}

	if err := w.Truncate(2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if seg.LastIndex() != 2 {
		t.Fatalf("expected last index 2, got %d", seg.LastIndex())
	}
	if e, ok := w.LastEntry(); !ok || e.Entry != "entry-2" {
		t.Errorf("expected last entry entry-2, got %+v", e)
	}

	if past.HasNext() || !past.Truncated() {
		t.Errorf("reader past the truncation point must stop")
	}

	if _, err := w.Append("rewritten-3"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	e, err := behind.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if e.Index != 3 || e.Entry != "rewritten-3" {
		t.Errorf("expected rewritten entry 3, got %+v", e)
	}
	if behind.HasNext() {
		t.Errorf("expected no discarded entries after the rewrite")
	}

	if past.HasNext() {
		t.Errorf("truncated reader must stay exhausted until reset")
	}
	if err := past.ResetTo(3); err != nil {
		t.Fatalf("ResetTo failed: %v", err)
	}
	if e, err := past.Next(); err != nil || e.Entry != "rewritten-3" {
		t.Errorf("expected rewritten entry after reset, got %+v, %v", e, err)
	}
}

func TestSegmentTruncateEverything(t *testing.T) {
	seg, _ := setupSegment(t, 16, 4096, journal.SegmentOptions{})
	appendN(t, seg.Writer(), 1, 3)

	if err := seg.Writer().Truncate(0); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if !seg.IsEmpty() || seg.Size() != types.DescriptorSize {
		t.Errorf("expected empty segment, got length %d size %d", seg.Length(), seg.Size())
	}
	if _, ok := seg.Writer().LastEntry(); ok {
		t.Errorf("expected no last entry")
	}
	if e, err := seg.Writer().Append("again"); err != nil || e.Index != 1 {
		t.Errorf("expected index 1 after emptying, got %+v, %v", e, err)
	}
}

func TestSegmentChecksumMismatch(t *testing.T) {
	seg, buf := setupSegment(t, 16, 4096, journal.SegmentOptions{})
	if _, err := seg.Writer().Append("hello"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := seg.Writer().Append("world"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// flip one payload byte of the second frame
	off := int64(types.DescriptorSize + types.FrameHeaderSize + 5 + types.FrameHeaderSize)
	b := make([]byte, 1)
	if _, err := buf.ReadAt(b, off); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	b[0] ^= 0x01
	if _, err := buf.WriteAt(b, off); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	r := seg.OpenReader()
	defer r.Close()
	if e, err := r.Next(); err != nil || e.Entry != "hello" {
		t.Fatalf("expected first entry, got %+v, %v", e, err)
	}
	if r.HasNext() {
		t.Errorf("expected corrupted frame to end the readable data")
	}
	if r.CurrentIndex() != 1 {
		t.Errorf("reader must not advance over a bad frame, current %d", r.CurrentIndex())
	}

	reopened, err := journal.OpenSegment[string](buf, journal.SegmentOptions{MaxEntrySize: 64}, journal.StringCodec{})
	if err != nil {
		t.Fatalf("OpenSegment failed: %v", err)
	}
	if reopened.LastIndex() != 1 {
		t.Errorf("expected recovery to stop before the bad frame, last %d", reopened.LastIndex())
	}
}

type strictCodec struct{}

func (strictCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }

func (strictCodec) Decode(b []byte) (string, error) {
	if string(b) == "bad" {
		return "", errors.New("unknown entry")
	}
	return string(b), nil
}

func TestSegmentDecodeError(t *testing.T) {
	buf := buffer.NewMemory(0)
	seg, err := journal.CreateSegment[string](buf, journal.NewDescriptor(1, 1, 4096, 16),
		journal.SegmentOptions{MaxEntrySize: 64}, strictCodec{})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	defer seg.Close()

	for _, s := range []string{"ok", "bad", "ok"} {
		if _, err := seg.Writer().Append(s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	r := seg.OpenReader()
	defer r.Close()
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !r.HasNext() {
		t.Fatalf("expected an intact frame to be readable")
	}
	for i := 0; i < 2; i++ {
		if _, err := r.Next(); !errors.Is(err, journal.ErrDecode) {
			t.Fatalf("expected ErrDecode, got %v", err)
		}
	}
	if r.CurrentIndex() != 1 {
		t.Errorf("expected reader to stay at 1, got %d", r.CurrentIndex())
	}

	// seeking skips decoding
	if err := r.ResetTo(3); err != nil {
		t.Fatalf("ResetTo failed: %v", err)
	}
	if e, err := r.Next(); err != nil || e.Index != 3 {
		t.Errorf("expected entry 3, got %+v, %v", e, err)
	}
}

func TestSegmentSealUnseal(t *testing.T) {
	seg, buf := setupSegment(t, 16, 4096, journal.SegmentOptions{})
	appendN(t, seg.Writer(), 1, 2)

	if err := seg.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	d, err := journal.ReadDescriptor(buf)
	if err != nil {
		t.Fatalf("ReadDescriptor failed: %v", err)
	}
	if !d.Locked || !seg.Sealed() {
		t.Fatalf("expected sealed descriptor")
	}
	if _, err := seg.Writer().Append("late"); !errors.Is(err, journal.ErrStorage) {
		t.Errorf("expected append to a sealed segment to fail, got %v", err)
	}

	if err := seg.Unseal(); err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	if e, err := seg.Writer().Append("late"); err != nil || e.Index != 3 {
		t.Errorf("expected append after unseal, got %+v, %v", e, err)
	}
}

func TestOpenSegmentIgnoresTornTail(t *testing.T) {
	seg, buf := setupSegment(t, 16, 4096, journal.SegmentOptions{})
	appendN(t, seg.Writer(), 1, 3)
	size := seg.Size()

	// a header promising more bytes than were written
	if _, err := buf.WriteAt([]byte{0, 0, 0, 40, 1, 2, 3, 4, 'x'}, size); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	reopened, err := journal.OpenSegment[string](buf, journal.SegmentOptions{MaxEntrySize: 64}, journal.StringCodec{})
	if err != nil {
		t.Fatalf("OpenSegment failed: %v", err)
	}
	if reopened.LastIndex() != 3 || reopened.Size() != size {
		t.Errorf("expected 3 entries in %d bytes, got %d in %d", size, reopened.LastIndex(), reopened.Size())
	}
	if e, ok := reopened.Writer().LastEntry(); !ok || e.Entry != "entry-3" {
		t.Errorf("expected last entry read back, got %+v", e)
	}

	r := reopened.OpenReader()
	defer r.Close()
	n := 0
	for r.HasNext() {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("expected 3 entries, read %d", n)
	}
}
