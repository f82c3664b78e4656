// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"sync"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

// MemoryLog keeps entries in process memory. Nothing survives a restart.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []model.LogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, entry model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, cloneEntry(entry))
	return nil
}

func (m *MemoryLog) List(_ context.Context, limit int) ([]model.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.entries) > limit {
		start = len(m.entries) - limit
	}
	out := make([]model.LogEntry, 0, len(m.entries)-start)
	for _, e := range m.entries[start:] {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (m *MemoryLog) Close() error { return nil }

func cloneEntry(e model.LogEntry) model.LogEntry {
	out := e
	out.Session = e.Session.Clone()
	if e.Resend != nil {
		r := *e.Resend
		r.Results = append([]model.DeliveryResult(nil), e.Resend.Results...)
		out.Resend = &r
	}
	return out
}
