//go:build linux
// +build linux

package buffer

import (
	"os"

	"golang.org/x/sys/unix"
)

// Linux: sequential access hint
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

// syncData skips the metadata flush when only data changed.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
