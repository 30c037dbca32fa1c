package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/journal/pkg/types"
	"github.com/downfa11-org/journal/util"
	"gopkg.in/yaml.v3"
)

// Config represents the journal configuration including tunable storage options
type Config struct {
	// Exporter & logging
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`

	// Command server; zero keeps the interactive console
	ServerPort int `yaml:"server_port" json:"server.port"`

	// Journal storage
	LogDir       string             `yaml:"log_dir" json:"log.dir"`
	JournalName  string             `yaml:"journal_name" json:"journal.name"`
	StorageLevel types.StorageLevel `yaml:"storage_level" json:"storage.level"`

	// Segment capacity, persisted in every segment descriptor.
	// MaxSegmentSize and MaxEntriesPerSegment must match on reopen.
	// MaxEntrySize may change: existing frames stay readable under the
	// limit they were written with, new appends follow the new value.
	MaxEntrySize         int   `yaml:"max_entry_size" json:"max.entry.size"`
	MaxSegmentSize       int64 `yaml:"max_segment_size" json:"max.segment.size"`
	MaxEntriesPerSegment int   `yaml:"max_entries_per_segment" json:"max.entries.per.segment"`

	// Read path tuning
	IndexIntervalBytes int `yaml:"index_interval_bytes" json:"index.interval.bytes"`
	CacheSize          int `yaml:"cache_size" json:"cache.size"`

	// Durability
	FlushOnCommit bool `yaml:"flush_on_commit" json:"flush.on.commit"`
}

const (
	defaultLogDir         = "journal-logs"
	defaultJournalName    = "raft"
	defaultExporterPort   = 9100
	defaultMaxEntrySize   = 1 << 20
	defaultMaxSegmentSize = 32 << 20
	defaultMaxEntries     = 1 << 20
	defaultIndexInterval  = 4096
	defaultCacheSize      = 1024
)

// LoadConfig parses command line flags, overlays an optional YAML/JSON file and
// re-applies flags that were set explicitly so they win over the file.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	logDir := fs.String("log-dir", defaultLogDir, "Directory holding segment files")
	name := fs.String("name", defaultJournalName, "Journal name, used as segment file prefix")
	storage := fs.String("storage", "disk", "Storage level (disk, mapped, memory)")
	exporter := fs.String("exporter", "false", "Enable Prometheus exporter")
	exporterPort := fs.String("exporter-port", "9100", "Exporter port")
	serverPort := fs.String("port", "0", "Serve journal commands over TCP on this port (0 reads stdin)")
	logLevel := fs.String("log-level", "info", "Log Level (debug, info, warn, error)")
	maxEntrySize := fs.String("max-entry-size", "1048576", "Maximum encoded entry size in bytes")
	maxSegmentSize := fs.Int64("max-segment-size", defaultMaxSegmentSize, "Maximum segment file size in bytes")
	maxEntries := fs.String("max-entries", "1048576", "Maximum number of entries per segment")
	indexInterval := fs.String("index-interval-bytes", "4096", "Bytes between sparse index samples")
	cacheSize := fs.String("cache-size", "1024", "Decoded entries cached per segment (negative disables)")
	flushOnCommit := fs.String("flush-on-commit", "false", "Flush segment after every append")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	apply := func(f *flag.Flag) {
		switch f.Name {
		case "log-dir":
			cfg.LogDir = *logDir
		case "name":
			cfg.JournalName = *name
		case "storage":
			if level, err := types.ParseStorageLevel(*storage); err == nil {
				cfg.StorageLevel = level
			} else {
				util.Warn("%v, keeping %s", err, cfg.StorageLevel)
			}
		case "exporter":
			cfg.EnableExporter = util.ParseBool(*exporter, cfg.EnableExporter)
		case "exporter-port":
			cfg.ExporterPort = util.ParseInt(*exporterPort, cfg.ExporterPort)
		case "port":
			cfg.ServerPort = util.ParseInt(*serverPort, cfg.ServerPort)
		case "log-level":
			cfg.LogLevel = util.ParseLogLevel(*logLevel)
		case "max-entry-size":
			cfg.MaxEntrySize = util.ParseInt(*maxEntrySize, cfg.MaxEntrySize)
		case "max-segment-size":
			cfg.MaxSegmentSize = *maxSegmentSize
		case "max-entries":
			cfg.MaxEntriesPerSegment = util.ParseInt(*maxEntries, cfg.MaxEntriesPerSegment)
		case "index-interval-bytes":
			cfg.IndexIntervalBytes = util.ParseInt(*indexInterval, cfg.IndexIntervalBytes)
		case "cache-size":
			cfg.CacheSize = util.ParseInt(*cacheSize, cfg.CacheSize)
		case "flush-on-commit":
			cfg.FlushOnCommit = util.ParseBool(*flushOnCommit, cfg.FlushOnCommit)
		}
	}

	// defaults first, then the file, then whatever was given on the command line
	fs.VisitAll(apply)

	if *configPath != "" {
		if err := loadFile(cfg, *configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(apply)

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
