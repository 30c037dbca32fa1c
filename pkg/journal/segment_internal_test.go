package journal

import (
	"testing"

	"github.com/downfa11-org/journal/pkg/buffer"
)

func TestTruncationHistoryStaysBounded(t *testing.T) {
	seg, err := CreateSegment[string](buffer.NewMemory(0), NewDescriptor(1, 1, 1<<16, 64),
		SegmentOptions{MaxEntrySize: 64}, StringCodec{})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	defer seg.Close()

	w := seg.Writer()
	for i := 0; i < 10; i++ {
		if _, err := w.Append("seed"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// a conflicting leader keeps rewriting the same suffix
	for round := 0; round < 1000; round++ {
		if err := w.Truncate(7); err != nil {
			t.Fatalf("Truncate failed: %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := w.Append("retry"); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
	}
	seg.truncMu.Lock()
	records := len(seg.history)
	seg.truncMu.Unlock()
	if records != 1 {
		t.Errorf("expected repeated truncations to collapse to 1 record, got %d", records)
	}
}

func TestTruncatedSinceReportsLowestFloor(t *testing.T) {
	seg, err := CreateSegment[string](buffer.NewMemory(0), NewDescriptor(1, 1, 1<<16, 64),
		SegmentOptions{MaxEntrySize: 64}, StringCodec{})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}
	defer seg.Close()

	// gens 1..4 truncate to 8, 5, 9, 6
	for _, index := range []uint64{8, 5, 9, 6} {
		seg.recordTruncation(index)
	}

	tests := []struct {
		since uint64
		floor uint64
	}{
		{0, 5},
		{1, 5},
		{2, 6},
		{3, 6},
	}
	for _, tt := range tests {
		gen, floor, changed := seg.truncatedSince(tt.since)
		if !changed || gen != 4 || floor != tt.floor {
			t.Errorf("truncatedSince(%d) = %d, %d, %v; want 4, %d, true", tt.since, gen, floor, changed, tt.floor)
		}
	}
	if _, _, changed := seg.truncatedSince(4); changed {
		t.Errorf("expected no change since the current generation")
	}
}
