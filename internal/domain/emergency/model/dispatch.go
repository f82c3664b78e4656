// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// DispatchOutcome is what the dispatch coordinator reports for one session.
type DispatchOutcome struct {
	Results      []DeliveryResult
	Location     *Coordinates
	LocationNote string
	Message      string
	// Failure is empty or RNone when sends were attempted, otherwise the
	// reason no send was possible.
	Failure    ReasonCode
	StartedAt  time.Time
	FinishedAt time.Time
}

// Attempted reports whether at least one send was issued.
func (o DispatchOutcome) Attempted() bool {
	return !o.Failure.IsFailure() && len(o.Results) > 0
}

// DeliveredCount returns how many contacts were reached.
func (o DispatchOutcome) DeliveredCount() int {
	n := 0
	for _, r := range o.Results {
		if r.Delivered {
			n++
		}
	}
	return n
}

// TerminalReason maps the outcome onto the reason a still-Active session closes with.
func (o DispatchOutcome) TerminalReason() (SessionState, ReasonCode) {
	if !o.Attempted() {
		if !o.Failure.IsFailure() {
			return StateFailed, RNoContacts
		}
		return StateFailed, o.Failure
	}
	delivered := o.DeliveredCount()
	switch {
	case delivered == 0:
		return StateFailed, RNoDeliveries
	case delivered < len(o.Results):
		return StateCompleted, RPartialDelivery
	default:
		return StateCompleted, RNone
	}
}

// ResendReport is the result of a user-initiated resend to previously failed contacts.
type ResendReport struct {
	SessionID  string           `json:"sessionId"`
	Results    []DeliveryResult `json:"results"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// DeliveredCount returns how many contacts were reached by the resend.
func (r ResendReport) DeliveredCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Delivered {
			n++
		}
	}
	return n
}
