// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/guardian/internal/domain/emergency/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From   model.SessionState
	To     model.SessionState
	Event  EventKind
	Reason model.ReasonCode
}

// Decision records whether a transition is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

// EvDispatchSettled out of ACTIVE resolves its target from the dispatch outcome,
// so the table lists it with an empty To.
var transitionsTable = []Transition{
	{From: model.StateIdle, To: model.StateArming, Event: EvDangerSignal},

	{From: model.StateArming, To: model.StateActive, Event: EvCountdownElapsed},
	{From: model.StateArming, To: model.StateCancelled, Event: EvCancelRequested, Reason: model.RUserCancelled},

	{From: model.StateActive, To: model.StateCancelled, Event: EvCancelRequested, Reason: model.RCancelledDuringDispatch},
	{From: model.StateActive, Event: EvDispatchSettled},

	// A session cancelled while ACTIVE still receives the real delivery outcome once.
	{From: model.StateCancelled, To: model.StateCancelled, Event: EvDispatchSettled, Reason: model.RCancelledDuringDispatch},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.SessionState, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
