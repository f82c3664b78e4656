// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/metrics"
	"github.com/ManuGH/guardian/internal/telemetry"
)

// fanOut sends message to every contact concurrently and returns the results
// in contact order. The group has no shared context so one failure never
// cancels a sibling.
func (c *Coordinator) fanOut(ctx context.Context, contacts []model.EmergencyContact, message string) []model.DeliveryResult {
	results := make([]model.DeliveryResult, len(contacts))
	var g errgroup.Group
	for i, contact := range contacts {
		g.Go(func() error {
			results[i] = c.sendOne(ctx, contact, message)
			return nil
		})
	}
	// sendOne turns every failure, panics included, into a result, so the
	// workers never return an error and Wait is only a join.
	_ = g.Wait()
	return results
}

func (c *Coordinator) sendOne(ctx context.Context, contact model.EmergencyContact, message string) (res model.DeliveryResult) {
	res = model.DeliveryResult{
		ContactID:   contact.ID,
		ContactName: contact.DisplayName(),
		Phone:       contact.Phone,
	}

	ctx, span := c.tracer.Start(ctx, telemetry.SpanSend)
	span.SetAttributes(attribute.String(telemetry.ContactIDKey, contact.ID))
	defer span.End()

	logger := log.FromContext(ctx).With().
		Str(log.FieldComponent, "dispatch").
		Str(log.FieldContactID, contact.ID).
		Str(log.FieldPhone, log.MaskPhone(contact.Phone)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Delivered = false
			res.Reason = model.FailureUnknown
			res.Detail = fmt.Sprintf("send panicked: %v", r)
			logger.Error().Interface("panic", r).Msg("alert send panicked")
		}
		metrics.RecordDelivery(res.Delivered, string(res.Reason))
		if !res.Delivered {
			span.SetStatus(codes.Error, string(res.Reason))
			span.SetAttributes(telemetry.ErrorAttributes(string(res.Reason))...)
		}
	}()

	if strings.TrimSpace(contact.Phone) == "" {
		res.Reason = model.FailureInvalidRecipient
		res.Detail = "contact has no phone number"
		logger.Warn().Msg("skipping contact without phone number")
		return res
	}

	// Sends outlive a session cancel; only the per-send timeout bounds them.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SendTimeout)
	defer cancel()

	err := c.transport.Send(sendCtx, contact.Phone, message)
	if err == nil {
		res.Delivered = true
		logger.Info().Str(log.FieldEvent, "dispatch.delivered").Msg("alert delivered")
		return res
	}
	if errors.Is(sendCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	res.Reason = model.ClassifySendError(err)
	res.Detail = err.Error()
	logger.Warn().Err(err).Str(log.FieldReason, string(res.Reason)).Msg("alert send failed")
	return res
}

// Resend sends the session's stored message to every contact whose delivery
// failed, concurrently, exactly once. The session itself is not touched.
func (c *Coordinator) Resend(ctx context.Context, snap model.SessionSnapshot) model.ResendReport {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanResend)
	defer span.End()

	report := model.ResendReport{SessionID: snap.ID, StartedAt: c.now()}
	failed := snap.FailedDeliveries()
	contacts := make([]model.EmergencyContact, 0, len(failed))
	for _, r := range failed {
		contacts = append(contacts, model.EmergencyContact{ID: r.ContactID, Name: r.ContactName, Phone: r.Phone})
	}

	message := snap.Message
	if message == "" {
		message = ComposeMessage(c.cfg.AlertText, snap.Location)
	}

	if err := c.transport.Available(ctx); err != nil {
		for _, contact := range contacts {
			report.Results = append(report.Results, model.DeliveryResult{
				ContactID:   contact.ID,
				ContactName: contact.DisplayName(),
				Phone:       contact.Phone,
				Reason:      model.FailureTransportUnavailable,
				Detail:      err.Error(),
			})
		}
	} else {
		report.Results = c.fanOut(ctx, contacts, message)
	}
	report.FinishedAt = c.now()
	span.SetAttributes(telemetry.DispatchAttributes(len(report.Results), report.DeliveredCount(), "")...)
	return report
}
