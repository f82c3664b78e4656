// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/guardian/internal/domain/emergency/model"

// EventKind is a domain event in the session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvDangerSignal
	EvCountdownElapsed
	EvCancelRequested
	EvDispatchSettled
)

func (k EventKind) String() string {
	switch k {
	case EvDangerSignal:
		return "danger_signal"
	case EvCountdownElapsed:
		return "countdown_elapsed"
	case EvCancelRequested:
		return "cancel_requested"
	case EvDispatchSettled:
		return "dispatch_settled"
	default:
		return "unknown"
	}
}

// Event carries optional domain metadata for a transition.
type Event struct {
	Kind    EventKind
	Outcome *model.DispatchOutcome
}
