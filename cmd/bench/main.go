package main

import (
	"flag"
	"log"
	"os"

	"github.com/downfa11-org/journal/pkg/bench"
	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/types"
)

func main() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	producers := fs.Int("producers", 4, "number of appending goroutines")
	consumers := fs.Int("consumers", 4, "number of readers replaying the journal")
	messages := fs.Int("messages", 10000, "entries per producer")
	size := fs.Int("payload", 128, "payload size in bytes")
	storage := fs.String("storage", "disk", "storage level (disk, mapped, memory)")
	dir := fs.String("log-dir", "", "segment directory (default: a temporary directory)")
	_ = fs.Parse(os.Args[1:])

	level, err := types.ParseStorageLevel(*storage)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logDir := *dir
	if logDir == "" {
		if logDir, err = os.MkdirTemp("", "journal-bench-"); err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer os.RemoveAll(logDir)
	}

	cfg := &config.Config{
		LogDir:       logDir,
		JournalName:  "bench",
		StorageLevel: level,
		MaxEntrySize: *size + 64,
	}

	runner := bench.NewBenchmarkRunner(cfg, *producers, *consumers, *messages, *size)
	res, err := runner.Run()
	if err != nil {
		log.Printf("❌ Benchmark failed: %v", err)
	}
	res.Print(level.String(), *producers, *consumers)
}
