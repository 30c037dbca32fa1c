package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/controller"
	"github.com/downfa11-org/journal/pkg/journal"
	"github.com/downfa11-org/journal/pkg/metrics"
	"github.com/downfa11-org/journal/pkg/server"
	"github.com/downfa11-org/journal/util"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Println("❌ Failed to load config:", err)
		os.Exit(1)
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}

	j, err := journal.Open[string](cfg, journal.StringCodec{})
	if err != nil {
		util.Fatal("❌ Failed to open journal: %v", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			util.Error("close journal: %v", err)
		}
	}()

	ch := controller.NewCommandHandler(j, cfg)

	if cfg.ServerPort > 0 {
		if err := server.RunServer(cfg, ch); err != nil {
			util.Error("❌ Server failed: %v", err)
		}
		return
	}

	ctx := controller.NewClientContext("console")
	fmt.Printf("🔹 Journal %s ready (%d..%d). Type HELP for commands.\n", j.Name(), j.FirstIndex(), j.LastIndex())
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), cfg.MaxEntrySize+64)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "EXIT") {
			break
		}
		fmt.Println(ch.HandleCommand(line, ctx))
	}
}
