// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/guardian/internal/domain/emergency/model"

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenAlreadyInProgress = "already_in_progress"
	ForbiddenRequiresSession   = "requires_session"
	ForbiddenRequiresDispatch  = "requires_dispatch"
)

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every State×Event combination.
var decisionTable = map[model.SessionState]map[EventKind]Decision{
	model.StateIdle: {
		EvDangerSignal:     allowed(),
		EvCountdownElapsed: forbid(ForbiddenRequiresSession),
		EvCancelRequested:  forbid(ForbiddenRequiresSession),
		EvDispatchSettled:  forbid(ForbiddenRequiresSession),
	},
	model.StateArming: {
		EvDangerSignal:     forbid(ForbiddenAlreadyInProgress),
		EvCountdownElapsed: allowed(),
		EvCancelRequested:  allowed(),
		EvDispatchSettled:  forbid(ForbiddenRequiresDispatch),
	},
	model.StateActive: {
		EvDangerSignal:     forbid(ForbiddenAlreadyInProgress),
		EvCountdownElapsed: forbid(ForbiddenOutOfOrder),
		EvCancelRequested:  allowed(),
		EvDispatchSettled:  allowed(),
	},
	model.StateCancelled: {
		EvDangerSignal:     forbid(ForbiddenTerminalAbsorbing),
		EvCountdownElapsed: forbid(ForbiddenTerminalAbsorbing),
		EvCancelRequested:  forbid(ForbiddenTerminalAbsorbing),
		// Allowed only while the session still has a dispatch in flight.
		EvDispatchSettled: allowed(),
	},
	model.StateCompleted: {
		EvDangerSignal:     forbid(ForbiddenTerminalAbsorbing),
		EvCountdownElapsed: forbid(ForbiddenTerminalAbsorbing),
		EvCancelRequested:  forbid(ForbiddenTerminalAbsorbing),
		EvDispatchSettled:  forbid(ForbiddenTerminalAbsorbing),
	},
	model.StateFailed: {
		EvDangerSignal:     forbid(ForbiddenTerminalAbsorbing),
		EvCountdownElapsed: forbid(ForbiddenTerminalAbsorbing),
		EvCancelRequested:  forbid(ForbiddenTerminalAbsorbing),
		EvDispatchSettled:  forbid(ForbiddenTerminalAbsorbing),
	},
}

// DecisionFor returns the explicit decision for state×event.
func DecisionFor(from model.SessionState, ev EventKind) (Decision, bool) {
	m, ok := decisionTable[from]
	if !ok {
		return Decision{}, false
	}
	d, ok := m[ev]
	return d, ok
}

// ForbiddenTransitionReason documents why a transition is disallowed.
func ForbiddenTransitionReason(from model.SessionState, ev EventKind) string {
	decision, ok := DecisionFor(from, ev)
	if !ok || decision.Allowed {
		return ""
	}
	return decision.Reason
}
