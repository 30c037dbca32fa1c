package util

import "hash/crc32"

// Checksum returns the IEEE CRC-32 of data. It keeps no state between calls.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumMatches reports whether data hashes to sum.
func ChecksumMatches(data []byte, sum uint32) bool {
	return crc32.ChecksumIEEE(data) == sum
}
