//go:build !linux
// +build !linux

package buffer

import "os"

func adviseSequential(f *os.File) {}

func syncData(f *os.File) error {
	return f.Sync()
}
