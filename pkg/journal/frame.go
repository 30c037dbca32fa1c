package journal

import (
	"encoding/binary"

	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

// A frame is [length u32][crc32 u32][payload], big-endian, checksum over the payload only.

func appendFrame(dst, payload []byte) []byte {
	var header [types.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], util.Checksum(payload))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

func readFrameHeader(b []byte) (length uint32, checksum uint32) {
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
}

func validLength(length uint32, maxEntrySize int) bool {
	return length > 0 && int64(length) <= int64(maxEntrySize)
}

func frameSize(length uint32) int64 {
	return types.FrameHeaderSize + int64(length)
}
