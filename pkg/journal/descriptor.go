package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/downfa11-org/journal/pkg/types"
)

const DescriptorVersion = 1

// Descriptor is the fixed header at the start of every segment.
//
//	0  version        u32
//	4  id             u64
//	12 index          u64  first log index stored in the segment
//	20 maxSegmentSize u64
//	28 maxEntries     u32
//	32 updated        i64  unix millis of the last header write
//	40 locked         u8   1 once the segment is sealed
//	41 maxEntrySize   u32  entry limit the frames were written under, 0 if unknown
//	45 reserved
type Descriptor struct {
	Version        uint32
	ID             uint64
	Index          uint64
	MaxSegmentSize int64
	MaxEntries     uint32
	Updated        int64
	Locked         bool
	MaxEntrySize   uint32
}

func NewDescriptor(id, index uint64, maxSegmentSize int64, maxEntries int) Descriptor {
	return Descriptor{
		Version:        DescriptorVersion,
		ID:             id,
		Index:          index,
		MaxSegmentSize: maxSegmentSize,
		MaxEntries:     uint32(maxEntries),
		Updated:        time.Now().UnixMilli(),
	}
}

func (d Descriptor) Encode() []byte {
	b := make([]byte, types.DescriptorSize)
	binary.BigEndian.PutUint32(b[0:4], d.Version)
	binary.BigEndian.PutUint64(b[4:12], d.ID)
	binary.BigEndian.PutUint64(b[12:20], d.Index)
	binary.BigEndian.PutUint64(b[20:28], uint64(d.MaxSegmentSize))
	binary.BigEndian.PutUint32(b[28:32], d.MaxEntries)
	binary.BigEndian.PutUint64(b[32:40], uint64(d.Updated))
	if d.Locked {
		b[40] = 1
	}
	binary.BigEndian.PutUint32(b[41:45], d.MaxEntrySize)
	return b
}

func DecodeDescriptor(b []byte) (Descriptor, error) {
	if len(b) < types.DescriptorSize {
		return Descriptor{}, fmt.Errorf("descriptor too short: %d bytes", len(b))
	}
	if b[40] > 1 {
		return Descriptor{}, fmt.Errorf("invalid locked flag %d", b[40])
	}
	d := Descriptor{
		Version:        binary.BigEndian.Uint32(b[0:4]),
		ID:             binary.BigEndian.Uint64(b[4:12]),
		Index:          binary.BigEndian.Uint64(b[12:20]),
		MaxSegmentSize: int64(binary.BigEndian.Uint64(b[20:28])),
		MaxEntries:     binary.BigEndian.Uint32(b[28:32]),
		Updated:        int64(binary.BigEndian.Uint64(b[32:40])),
		Locked:         b[40] == 1,
		MaxEntrySize:   binary.BigEndian.Uint32(b[41:45]),
	}
	return d, d.Validate()
}

// ReadDescriptor reads and validates the header at the start of r.
func ReadDescriptor(r io.ReaderAt) (Descriptor, error) {
	b := make([]byte, types.DescriptorSize)
	n, err := r.ReadAt(b, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(b)) {
		return Descriptor{}, fmt.Errorf("read descriptor (%d bytes): %w", n, err)
	}
	return DecodeDescriptor(b)
}

func (d Descriptor) Validate() error {
	switch {
	case d.Version != DescriptorVersion:
		return fmt.Errorf("unsupported descriptor version %d", d.Version)
	case d.ID == 0:
		return errors.New("segment id must be positive")
	case d.Index == 0:
		return errors.New("segment starting index must be positive")
	case d.MaxEntries == 0:
		return errors.New("max entries must be positive")
	case d.MaxSegmentSize <= types.DescriptorSize+types.FrameHeaderSize:
		return fmt.Errorf("max segment size %d cannot hold any entry", d.MaxSegmentSize)
	}
	return nil
}
