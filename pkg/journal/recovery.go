package journal

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/downfa11-org/journal/pkg/buffer"
	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

type segmentFile struct {
	id   uint64
	path string
}

// recover loads every segment of the journal from disk. Nothing is
// repaired: any inconsistency aborts the open.
func (j *Journal[E]) recover() error {
	if !j.cfg.StorageLevel.Persistent() {
		return j.start()
	}

	files, err := j.listSegments()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return j.start()
	}

	for i, f := range files {
		seg, err := j.loadSegment(f, i == len(files)-1)
		if err != nil {
			j.closeSegments()
			return err
		}
		j.segments = append(j.segments, seg)
	}
	return nil
}

func (j *Journal[E]) start() error {
	seg, err := j.createSegment(1, 1)
	if err != nil {
		return err
	}
	j.segments = []*Segment[E]{seg}
	return nil
}

// listSegments returns the journal's segment files ordered by id.
func (j *Journal[E]) listSegments() ([]segmentFile, error) {
	entries, err := os.ReadDir(j.cfg.LogDir)
	if err != nil {
		return nil, newRecoveryError(j.cfg.LogDir, err, "cannot list segments")
	}

	prefix := j.cfg.JournalName + "-"
	var files []segmentFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), segmentSuffix)
		if !isDecimal(digits) {
			// another journal sharing the directory, e.g. {name}-meta-1.log
			continue
		}
		path := filepath.Join(j.cfg.LogDir, name)
		id, err := strconv.ParseUint(digits, 10, 64)
		if err != nil || id == 0 {
			return nil, newRecoveryError(path, err, "malformed segment file name")
		}
		files = append(files, segmentFile{id: id, path: path})
	}

	sort.Slice(files, func(a, b int) bool { return files[a].id < files[b].id })
	return files, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (j *Journal[E]) loadSegment(f segmentFile, last bool) (*Segment[E], error) {
	buf, err := buffer.OpenFile(f.path)
	if err != nil {
		return nil, newRecoveryError(f.path, err, "cannot open segment")
	}

	seg, err := j.checkSegment(f, buf, last)
	if err != nil {
		if cerr := buf.Close(); cerr != nil {
			util.Error("failed to close %s: %v", f.path, cerr)
		}
		return nil, err
	}
	util.Debug("journal %s recovered segment %d: indices %d..%d, %d bytes, sealed=%v",
		j.cfg.JournalName, seg.ID(), seg.FirstIndex(), seg.LastIndex(), seg.Size(), seg.Sealed())
	return seg, nil
}

func (j *Journal[E]) checkSegment(f segmentFile, buf *buffer.File, last bool) (*Segment[E], error) {
	d, err := ReadDescriptor(buf)
	if err != nil {
		return nil, newRecoveryError(f.path, err, "invalid descriptor")
	}

	switch {
	case d.ID != f.id:
		return nil, newRecoveryError(f.path, nil, "descriptor id %d does not match file id %d", d.ID, f.id)
	case d.MaxSegmentSize != j.cfg.MaxSegmentSize:
		return nil, newRecoveryError(f.path, nil, "max segment size %d, configured %d", d.MaxSegmentSize, j.cfg.MaxSegmentSize)
	case int(d.MaxEntries) != j.cfg.MaxEntriesPerSegment:
		return nil, newRecoveryError(f.path, nil, "max entries %d, configured %d", d.MaxEntries, j.cfg.MaxEntriesPerSegment)
	}

	if n := len(j.segments); n > 0 {
		prev := j.segments[n-1]
		switch {
		case d.ID == prev.ID():
			return nil, newRecoveryError(f.path, nil, "duplicate segment id %d", d.ID)
		case d.Index <= prev.FirstIndex():
			return nil, newRecoveryError(f.path, nil, "segment %d starts at %d, not after segment %d starting at %d",
				d.ID, d.Index, prev.ID(), prev.FirstIndex())
		case d.Index != prev.LastIndex()+1:
			return nil, newRecoveryError(f.path, nil, "segment %d starts at %d but segment %d ends at %d",
				d.ID, d.Index, prev.ID(), prev.LastIndex())
		}
	}
	if !last && !d.Locked {
		return nil, newRecoveryError(f.path, nil, "segment %d is followed by another but was never sealed", d.ID)
	}

	seg, err := OpenSegment(buf, j.opts, j.codec)
	if err != nil {
		return nil, newRecoveryError(f.path, err, "cannot scan segment")
	}

	if seg.trailing > 0 {
		if !last {
			seg.Close()
			return nil, newRecoveryError(f.path, nil, "sealed segment %d has %d unreadable bytes after index %d",
				d.ID, seg.trailing, seg.LastIndex())
		}
		if seg.trailing > types.FrameHeaderSize+int64(seg.readLimit) {
			seg.Close()
			return nil, newRecoveryError(f.path, nil, "%d unreadable bytes after index %d exceed one torn frame",
				seg.trailing, seg.LastIndex())
		}
		util.Warn("journal %s: discarding %d bytes of torn write after index %d in %s",
			j.cfg.JournalName, seg.trailing, seg.LastIndex(), f.path)
		if err := seg.discardTrailing(); err != nil {
			seg.Close()
			return nil, newRecoveryError(f.path, err, "cannot discard torn write")
		}
	}

	if last {
		if err := seg.raiseEntryLimit(); err != nil {
			seg.Close()
			return nil, newRecoveryError(f.path, err, "cannot record max entry size")
		}
	}
	if last && d.Locked {
		if err := seg.Unseal(); err != nil {
			seg.Close()
			return nil, newRecoveryError(f.path, err, "cannot reopen last segment for writing")
		}
	}
	return seg, nil
}

func (j *Journal[E]) closeSegments() {
	for _, seg := range j.segments {
		if err := seg.Close(); err != nil {
			util.Error("failed to close segment %d: %v", seg.ID(), err)
		}
	}
	j.segments = nil
}
