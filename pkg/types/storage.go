package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorageLevel selects the medium backing journal segments.
type StorageLevel int

const (
	// StorageDisk keeps segments in files and reads them through the file handle.
	StorageDisk StorageLevel = iota
	// StorageMapped keeps segments in files and reads sealed segments through mmap.
	StorageMapped
	// StorageMemory keeps segments on the heap; nothing survives Close.
	StorageMemory
)

func ParseStorageLevel(s string) (StorageLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disk":
		return StorageDisk, nil
	case "mapped", "mmap":
		return StorageMapped, nil
	case "memory":
		return StorageMemory, nil
	default:
		return StorageDisk, fmt.Errorf("unknown storage level %q", s)
	}
}

func (l StorageLevel) String() string {
	switch l {
	case StorageDisk:
		return "disk"
	case StorageMapped:
		return "mapped"
	case StorageMemory:
		return "memory"
	default:
		return fmt.Sprintf("StorageLevel(%d)", int(l))
	}
}

// Persistent reports whether segments outlive the process.
func (l StorageLevel) Persistent() bool {
	return l != StorageMemory
}

func (l *StorageLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("storage_level must be one of disk, mapped, memory")
	}
	level, err := ParseStorageLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (l *StorageLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("storage_level must be one of disk, mapped, memory")
	}
	level, err := ParseStorageLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// SegmentStats is a point-in-time summary of one journal segment.
type SegmentStats struct {
	ID         uint64
	FirstIndex uint64
	LastIndex  uint64
	Size       int64
	Sealed     bool
	Path       string
}
