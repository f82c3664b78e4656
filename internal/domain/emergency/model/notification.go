// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// NotificationKind drives how the UI styles a notification.
type NotificationKind string

const (
	NotifySuccess  NotificationKind = "success"
	NotifyDegraded NotificationKind = "degraded"
	NotifyError    NotificationKind = "error"
	NotifyWarning  NotificationKind = "warning"
	NotifyInfo     NotificationKind = "info"
)

// Notification is pushed to the UI once per recorded session outcome.
type Notification struct {
	ID                string           `json:"id"`
	Kind              NotificationKind `json:"kind"`
	Title             string           `json:"title"`
	Body              string           `json:"body"`
	SessionID         string           `json:"sessionId"`
	State             SessionState     `json:"state"`
	Reason            ReasonCode       `json:"reason,omitempty"`
	UnreachedContacts []string         `json:"unreachedContacts,omitempty"`
	Recorded          bool             `json:"recorded"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// StateChange is published on every session state transition.
type StateChange struct {
	SessionID string        `json:"sessionId"`
	From      SessionState  `json:"from"`
	To        SessionState  `json:"to"`
	Reason    ReasonCode    `json:"reason,omitempty"`
	Source    TriggerSource `json:"source,omitempty"`
	At        time.Time     `json:"at"`
}

// EntryKind distinguishes event-log records.
type EntryKind string

const (
	EntrySession EntryKind = "session"
	EntryResend  EntryKind = "resend"
)

// LogEntry is one durable event-log record.
type LogEntry struct {
	Kind       EntryKind       `json:"kind"`
	Session    SessionSnapshot `json:"session"`
	Resend     *ResendReport   `json:"resend,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}
