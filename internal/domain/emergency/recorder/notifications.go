// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

// SessionNotification renders the single notification for a sealed session.
func SessionNotification(snap model.SessionSnapshot, recorded bool, at time.Time) model.Notification {
	n := newNotification(snap, at)
	total := len(snap.DispatchResults)
	delivered := countDelivered(snap.DispatchResults)

	switch snap.State {
	case model.StateCompleted:
		if delivered == total {
			n.Kind = model.NotifySuccess
			n.Title = "Emergency alert sent"
			n.Body = fmt.Sprintf("All %d emergency contacts were alerted.", total)
			break
		}
		n.Kind = model.NotifyDegraded
		n.Title = "Emergency alert partially sent"
		n.UnreachedContacts = unreached(snap.DispatchResults)
		n.Body = fmt.Sprintf("Alert sent to %d of %d contacts. Not reached: %s.",
			delivered, total, strings.Join(n.UnreachedContacts, ", "))
	case model.StateFailed:
		n.Kind = model.NotifyError
		n.Title = "Emergency alert failed"
		n.Body = failureBody(snap)
		n.UnreachedContacts = unreached(snap.DispatchResults)
	case model.StateCancelled:
		if snap.Reason == model.RCancelledDuringDispatch {
			n.Kind = model.NotifyWarning
			n.Title = "Emergency cancelled after alerts were sent"
			n.Body = fmt.Sprintf("Cancelled while alerts may have been sent. Delivered to %d of %d contacts.", delivered, total)
			n.UnreachedContacts = unreached(snap.DispatchResults)
			break
		}
		n.Kind = model.NotifyInfo
		n.Title = "Emergency cancelled"
		n.Body = "Cancelled before any alert was sent."
	default:
		n.Kind = model.NotifyError
		n.Title = "Emergency session ended unexpectedly"
		n.Body = fmt.Sprintf("Session closed in state %s.", snap.State)
	}

	if !recorded {
		n = markUnrecorded(n, delivered > 0)
	}
	return n
}

func failureBody(snap model.SessionSnapshot) string {
	switch snap.Reason {
	case model.RNoContacts:
		return "No emergency contacts configured. Add a contact so alerts can be sent."
	case model.RTransportUnavailable:
		return "Messaging is unavailable on this device. No alert was sent."
	case model.RNoDeliveries:
		return fmt.Sprintf("No deliveries succeeded. None of the %d contacts could be reached.", len(snap.DispatchResults))
	default:
		return "No alert could be sent: " + snap.Reason.Description() + "."
	}
}

// ResendNotification renders the notification for a user-initiated resend.
func ResendNotification(snap model.SessionSnapshot, report model.ResendReport, recorded bool, at time.Time) model.Notification {
	n := newNotification(snap, at)
	total := len(report.Results)
	delivered := countDelivered(report.Results)
	n.UnreachedContacts = unreached(report.Results)

	switch {
	case total > 0 && delivered == total:
		n.Kind = model.NotifySuccess
		n.Title = "Resend succeeded"
		n.Body = fmt.Sprintf("Alert resent to all %d previously unreached contacts.", total)
	case delivered > 0:
		n.Kind = model.NotifyDegraded
		n.Title = "Resend partially succeeded"
		n.Body = fmt.Sprintf("Alert resent to %d of %d contacts. Still not reached: %s.",
			delivered, total, strings.Join(n.UnreachedContacts, ", "))
	default:
		n.Kind = model.NotifyError
		n.Title = "Resend failed"
		n.Body = fmt.Sprintf("None of the %d contacts could be reached.", total)
	}

	if !recorded {
		n = markUnrecorded(n, delivered > 0)
	}
	return n
}
