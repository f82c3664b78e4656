// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
)

var ErrNotReadable = errors.New("event log cannot be read back")

// EventStore is an event log that can replay its entries and be closed.
type EventStore interface {
	ports.EventLog
	ports.EventReader
	Close() error
}

// OpenEventLog creates the event log for backend. For sqlite and badger, path is
// the database file or directory; an empty path falls back to a default under dataDir.
func OpenEventLog(backend, path, dataDir string) (EventStore, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		return NewMemoryLog(), nil
	case "sqlite":
		if path == "" {
			path = filepath.Join(dataDir, "guardian.sqlite")
		}
		return NewSqliteStore(path)
	case "badger":
		if path == "" {
			path = filepath.Join(dataDir, "eventlog.badger")
		}
		return OpenBadgerLog(path)
	default:
		return nil, fmt.Errorf("unknown event log backend: %s", backend)
	}
}
