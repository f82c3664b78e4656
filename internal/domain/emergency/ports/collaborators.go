// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

var (
	ErrLocationTimedOut    = errors.New("location timed out")
	ErrLocationUnavailable = errors.New("location unavailable")
)

// ContactStore returns the ordered emergency contacts. Implementations own their
// own bound on how long List may take.
type ContactStore interface {
	List(ctx context.Context) ([]model.EmergencyContact, error)
}

// LocationProvider returns the current position or fails. The deadline on ctx is
// the acquisition timeout; providers should return ErrLocationUnavailable when
// they have no fix.
type LocationProvider interface {
	Current(ctx context.Context) (model.Coordinates, error)
}

// AlertTransport sends one text message to one phone number.
type AlertTransport interface {
	// Available reports whether any send can be attempted at all.
	Available(ctx context.Context) error
	// Send returns nil when the message was handed off, or an error that
	// model.ClassifySendError understands.
	Send(ctx context.Context, phone, message string) error
}

// EventLog durably appends one record per recorded session outcome.
type EventLog interface {
	Append(ctx context.Context, entry model.LogEntry) error
}

// EventReader is implemented by event logs that can replay what they stored.
type EventReader interface {
	List(ctx context.Context, limit int) ([]model.LogEntry, error)
}
