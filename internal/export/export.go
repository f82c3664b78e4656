// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package export writes the event log to a standalone JSON file.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
)

// MaxEntries bounds a single export.
const MaxEntries = 100_000

// WriteJSON replaces path with an indented JSON array of every logged entry,
// oldest first. The file is either fully written or left untouched.
func WriteJSON(ctx context.Context, reader ports.EventReader, path string) (int, error) {
	entries, err := reader.List(ctx, MaxEntries)
	if err != nil {
		return 0, fmt.Errorf("read event log: %w", err)
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return 0, fmt.Errorf("create pending export: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("atomically replace export: %w", err)
	}

	log.FromContext(ctx).Info().
		Str(log.FieldEvent, "export.written").
		Str(log.FieldPath, path).
		Int("entries", len(entries)).
		Msg("event log exported")
	return len(entries), nil
}

// DefaultPath names a timestamped export file inside dir.
func DefaultPath(dir string, now time.Time) string {
	return filepath.Join(dir, "exports", "emergency-log-"+now.UTC().Format("20060102T150405Z")+".json")
}
