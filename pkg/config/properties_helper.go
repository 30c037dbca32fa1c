package config

import (
	"strings"

	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
)

func (cfg *Config) Normalize() {
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = defaultExporterPort
	}
	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		util.Warn("Invalid server_port %d, serving stdin instead", cfg.ServerPort)
		cfg.ServerPort = 0
	}

	// journal storage
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = defaultLogDir
	}
	if strings.TrimSpace(cfg.JournalName) == "" {
		cfg.JournalName = defaultJournalName
	}
	if strings.ContainsAny(cfg.JournalName, `/\`) {
		util.Warn("Invalid journal_name '%s', defaulting to '%s'", cfg.JournalName, defaultJournalName)
		cfg.JournalName = defaultJournalName
	}
	switch cfg.StorageLevel {
	case types.StorageDisk, types.StorageMapped, types.StorageMemory:
	default:
		util.Warn("Invalid storage_level %d, defaulting to disk", int(cfg.StorageLevel))
		cfg.StorageLevel = types.StorageDisk
	}

	// segment capacity
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = defaultMaxEntrySize
	}
	if cfg.MaxSegmentSize <= 0 {
		cfg.MaxSegmentSize = defaultMaxSegmentSize
	}
	if floor := cfg.MinSegmentSize(); cfg.MaxSegmentSize < floor {
		util.Warn("max_segment_size %d cannot hold one max_entry_size entry, raising to %d", cfg.MaxSegmentSize, floor)
		cfg.MaxSegmentSize = floor
	}
	if cfg.MaxEntriesPerSegment <= 0 {
		cfg.MaxEntriesPerSegment = defaultMaxEntries
	}

	// read path
	if cfg.IndexIntervalBytes <= 0 {
		cfg.IndexIntervalBytes = defaultIndexInterval
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaultCacheSize
	}
}

// MinSegmentSize is the smallest segment able to hold the descriptor and one
// entry of MaxEntrySize.
func (cfg *Config) MinSegmentSize() int64 {
	return int64(types.DescriptorSize + types.FrameHeaderSize + cfg.MaxEntrySize)
}

// CacheCapacity returns the per-segment cache capacity; zero disables caching.
func (cfg *Config) CacheCapacity() int {
	if cfg.CacheSize < 0 {
		return 0
	}
	return cfg.CacheSize
}
