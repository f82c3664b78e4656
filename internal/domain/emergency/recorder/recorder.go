// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package recorder persists sealed emergency sessions and tells the UI how they ended.
package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/metrics"
)

const defaultPublishTimeout = 2 * time.Second

// Recorder appends one event-log entry and publishes one notification per call.
// A failing event log never prevents the notification.
type Recorder struct {
	eventLog       ports.EventLog
	publisher      ports.Publisher
	backend        string
	publishTimeout time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

type Option func(*Recorder)

// WithBackendName labels append-failure metrics.
func WithBackendName(name string) Option {
	return func(r *Recorder) { r.backend = name }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func New(eventLog ports.EventLog, publisher ports.Publisher, opts ...Option) *Recorder {
	r := &Recorder{
		eventLog:       eventLog,
		publisher:      publisher,
		backend:        "unknown",
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
		logger:         log.WithComponent("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists the sealed session and publishes its notification.
func (r *Recorder) Record(ctx context.Context, snap model.SessionSnapshot) model.Notification {
	entry := model.LogEntry{
		Kind:       model.EntrySession,
		Session:    snap.Clone(),
		RecordedAt: r.now(),
	}
	recorded := r.append(ctx, entry)
	n := SessionNotification(snap, recorded, r.now())
	r.publish(ctx, n)
	return n
}

// RecordResend persists a resend report and publishes its notification.
func (r *Recorder) RecordResend(ctx context.Context, snap model.SessionSnapshot, report model.ResendReport) model.Notification {
	rep := report
	rep.Results = append([]model.DeliveryResult(nil), report.Results...)
	entry := model.LogEntry{
		Kind:       model.EntryResend,
		Session:    snap.Clone(),
		Resend:     &rep,
		RecordedAt: r.now(),
	}
	recorded := r.append(ctx, entry)
	n := ResendNotification(snap, report, recorded, r.now())
	r.publish(ctx, n)
	return n
}

func (r *Recorder) append(ctx context.Context, entry model.LogEntry) (ok bool) {
	logger := r.logger.With().
		Str(log.FieldSessionID, entry.Session.ID).
		Str(log.FieldBackend, r.backend).
		Str("kind", string(entry.Kind)).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			metrics.RecordEventLogFailure(r.backend)
			logger.Error().Interface("panic", rec).Str(log.FieldEvent, "recorder.append_panic").Msg("event log append panicked")
		}
	}()

	if r.eventLog == nil {
		metrics.RecordEventLogFailure(r.backend)
		logger.Error().Str(log.FieldEvent, "recorder.no_log").Msg("no event log configured")
		return false
	}
	if err := r.eventLog.Append(context.WithoutCancel(ctx), entry); err != nil {
		metrics.RecordEventLogFailure(r.backend)
		logger.Error().Err(err).Str(log.FieldEvent, "recorder.append_failed").Msg("event log append failed")
		return false
	}
	logger.Debug().Str(log.FieldEvent, "recorder.appended").Msg("session outcome recorded")
	return true
}

func (r *Recorder) publish(ctx context.Context, n model.Notification) {
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, ports.TopicNotifications, n); err != nil {
		r.logger.Warn().Err(err).
			Str(log.FieldSessionID, n.SessionID).
			Str(log.FieldNotification, string(n.Kind)).
			Msg("notification publish failed")
	}
}

func newNotification(snap model.SessionSnapshot, at time.Time) model.Notification {
	return model.Notification{
		ID:        uuid.NewString(),
		SessionID: snap.ID,
		State:     snap.State,
		Reason:    snap.Reason,
		Recorded:  true,
		CreatedAt: at,
	}
}

func unreached(results []model.DeliveryResult) []string {
	var names []string
	for _, res := range results {
		if !res.Delivered {
			name := res.ContactName
			if name == "" {
				name = res.ContactID
			}
			names = append(names, name)
		}
	}
	return names
}

func countDelivered(results []model.DeliveryResult) int {
	n := 0
	for _, res := range results {
		if res.Delivered {
			n++
		}
	}
	return n
}

// markUnrecorded degrades a notification whose outcome could not be persisted.
// Anything that reached a contact becomes "alert sent but not recorded".
func markUnrecorded(n model.Notification, anyDelivered bool) model.Notification {
	n.Recorded = false
	if anyDelivered {
		n.Kind = model.NotifyDegraded
		n.Title = "Alert sent but not recorded"
	}
	n.Body += " This outcome could not be saved to the emergency log."
	return n
}
