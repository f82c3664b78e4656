// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ManuGH/guardian/internal/config"
	"github.com/ManuGH/guardian/internal/domain/emergency/store"
	"github.com/ManuGH/guardian/internal/export"
	"github.com/ManuGH/guardian/internal/log"
)

func runExportCLI(args []string) int {
	return runExport(args, os.Stdout, os.Stderr)
}

// runExport writes the event log to a JSON file and prints where it went.
func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	out := fs.String("out", "", "export file (default: <dataDir>/exports/emergency-log-<time>.json)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Configure(log.Config{Level: "warn", Output: stderr, Service: "guardian", Version: version})

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	eventLog, err := store.OpenEventLog(cfg.EventLog.Backend, cfg.EventLog.Path, cfg.DataDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open event log: %v\n", err)
		return 1
	}
	defer func() { _ = eventLog.Close() }()

	path := *out
	if path == "" {
		path = export.DefaultPath(cfg.DataDir, time.Now())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := export.WriteJSON(ctx, eventLog, path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "exported %d entries to %s\n", n, path)
	return 0
}
