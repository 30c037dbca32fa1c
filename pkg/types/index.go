package types

const (
	PositionSize    = 16 // index(8) + offset(8)
	FrameHeaderSize = 8  // length(4) + crc32(4)
	DescriptorSize  = 64
)

// Position maps a log index to the byte offset of its frame within a segment.
type Position struct {
	Index  uint64
	Offset uint64
}
