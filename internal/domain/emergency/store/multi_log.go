// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"errors"
	"io"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/metrics"
)

// Mirror is a secondary log that receives every entry after the primary.
type Mirror struct {
	Name string
	Log  ports.EventLog
}

// MultiLog appends to a primary log and then to best-effort mirrors. Only the
// primary decides whether an entry counts as recorded.
type MultiLog struct {
	primary ports.EventLog
	mirrors []Mirror
}

func NewMultiLog(primary ports.EventLog, mirrors ...Mirror) *MultiLog {
	return &MultiLog{primary: primary, mirrors: mirrors}
}

func (m *MultiLog) Append(ctx context.Context, entry model.LogEntry) error {
	if err := m.primary.Append(ctx, entry); err != nil {
		return err
	}
	for _, mirror := range m.mirrors {
		if err := mirror.Log.Append(ctx, entry); err != nil {
			metrics.RecordEventLogFailure(mirror.Name)
			log.L().Warn().Err(err).
				Str(log.FieldBackend, mirror.Name).
				Str(log.FieldSessionID, entry.Session.ID).
				Msg("event log mirror append failed")
		}
	}
	return nil
}

// List reads from the primary.
func (m *MultiLog) List(ctx context.Context, limit int) ([]model.LogEntry, error) {
	reader, ok := m.primary.(ports.EventReader)
	if !ok {
		return nil, ErrNotReadable
	}
	return reader.List(ctx, limit)
}

func (m *MultiLog) Close() error {
	var errs []error
	if c, ok := m.primary.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	for _, mirror := range m.mirrors {
		if c, ok := mirror.Log.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
