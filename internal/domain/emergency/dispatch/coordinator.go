// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dispatch turns an active emergency session into alert sends: it
// acquires the location under a deadline, snapshots the contacts, and fans the
// message out to every contact concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/metrics"
	"github.com/ManuGH/guardian/internal/telemetry"
)

const (
	DefaultLocationTimeout = 5 * time.Second
	DefaultSendTimeout     = 15 * time.Second
	DefaultAlertText       = "EMERGENCY SOS ALERT! I need help!"

	// LocationUnavailableText replaces the map link when no fix was obtained.
	LocationUnavailableText = "Location unavailable."
)

// Config bounds a dispatch pass.
type Config struct {
	LocationTimeout time.Duration
	SendTimeout     time.Duration
	AlertText       string
}

func (c Config) withDefaults() Config {
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = DefaultLocationTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if strings.TrimSpace(c.AlertText) == "" {
		c.AlertText = DefaultAlertText
	}
	return c
}

// Coordinator runs dispatch passes. It holds no session state and is safe for
// concurrent use.
type Coordinator struct {
	cfg       Config
	contacts  ports.ContactStore
	location  ports.LocationProvider
	transport ports.AlertTransport
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Coordinator)

// WithNow overrides the timestamp source used for StartedAt/FinishedAt.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, contacts ports.ContactStore, location ports.LocationProvider, transport ports.AlertTransport, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		contacts:  contacts,
		location:  location,
		transport: transport,
		now:       time.Now,
		tracer:    telemetry.Tracer("guardian/dispatch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type locationResult struct {
	coords model.Coordinates
	err    error
}

// Dispatch performs one pass for an Active session. It never returns an error:
// every failure is expressed in the outcome. Cancelling ctx does not abort
// sends that were already issued.
func (c *Coordinator) Dispatch(ctx context.Context, snap model.SessionSnapshot) model.DispatchOutcome {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanDispatch,
		trace.WithAttributes(telemetry.SessionAttributes(snap.ID, string(snap.TriggerSource))...))
	defer span.End()

	logger := log.WithComponentFromContext(log.ContextWithSessionID(ctx, snap.ID), "dispatch")
	out := model.DispatchOutcome{StartedAt: c.now(), Failure: model.RNone}
	defer func() {
		out.FinishedAt = c.now()
		metrics.ObserveDispatch(out.FinishedAt.Sub(out.StartedAt))
		span.SetAttributes(telemetry.DispatchAttributes(len(out.Results), out.DeliveredCount(), string(out.Failure))...)
		if out.Failure.IsFailure() {
			span.SetStatus(codes.Error, out.Failure.Description())
		}
	}()

	// Location and contacts are fetched concurrently; the location request is
	// started first because it carries the longest bound.
	locCtx, cancelLoc := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LocationTimeout)
	defer cancelLoc()
	locCh := make(chan locationResult, 1)
	go func() {
		coords, err := c.location.Current(locCtx)
		locCh <- locationResult{coords: coords, err: err}
	}()

	contacts, err := c.contacts.List(ctx)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "dispatch.contacts_failed").Msg("contact store read failed")
		out.Failure = model.RInternal
		return out
	}
	if len(contacts) == 0 {
		logger.Warn().Str(log.FieldEvent, "dispatch.no_contacts").Msg("no emergency contacts configured")
		out.Failure = model.RNoContacts
		return out
	}
	if err := c.transport.Available(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "dispatch.transport_unavailable").Msg("alert transport unavailable")
		out.Failure = model.RTransportUnavailable
		return out
	}

	coords, note := c.awaitLocation(ctx, locCtx, locCh)
	if coords != nil {
		out.Location = coords
	}
	out.LocationNote = note
	out.Message = ComposeMessage(c.cfg.AlertText, coords)

	out.Results = c.fanOut(ctx, contacts, out.Message)
	logger.Info().
		Str(log.FieldEvent, "dispatch.settled").
		Int("contacts", len(out.Results)).
		Int("delivered", out.DeliveredCount()).
		Bool("location", out.Location != nil).
		Msg("dispatch settled")
	return out
}

// awaitLocation waits for the provider or the timeout, whichever comes first.
// A late provider answer lands in the buffered channel and is dropped.
func (c *Coordinator) awaitLocation(ctx, locCtx context.Context, locCh <-chan locationResult) (*model.Coordinates, string) {
	_, span := c.tracer.Start(ctx, telemetry.SpanLocation)
	defer span.End()

	var res locationResult
	select {
	case res = <-locCh:
	case <-locCtx.Done():
		res.err = ports.ErrLocationTimedOut
	}

	switch {
	case res.err == nil && res.coords.Valid():
		metrics.RecordLocation("resolved")
		span.SetAttributes(attribute.String(telemetry.LocationKey, "resolved"))
		coords := res.coords
		return &coords, ""
	case errors.Is(res.err, ports.ErrLocationTimedOut), errors.Is(res.err, context.DeadlineExceeded):
		metrics.RecordLocation("timeout")
		span.SetAttributes(attribute.String(telemetry.LocationKey, "timeout"))
		return nil, fmt.Sprintf("location timed out after %s", c.cfg.LocationTimeout)
	default:
		if res.err == nil {
			res.err = errors.New("invalid coordinates")
		}
		metrics.RecordLocation("unavailable")
		span.SetAttributes(attribute.String(telemetry.LocationKey, "unavailable"))
		return nil, "location unavailable: " + res.err.Error()
	}
}

// ComposeMessage builds the single alert text sent to every contact.
func ComposeMessage(alertText string, coords *model.Coordinates) string {
	alertText = strings.TrimSpace(alertText)
	if alertText == "" {
		alertText = DefaultAlertText
	}
	if coords == nil {
		return alertText + " " + LocationUnavailableText
	}
	return alertText + " My current location: " + coords.MapURL()
}
