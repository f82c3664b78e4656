// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"fmt"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

// Dispatch resolves and applies the next transition for s.
// It is the only function that mutates session state.
func Dispatch(s *model.EmergencySession, ev Event, now time.Time) (Transition, error) {
	if s.Sealed {
		return Transition{}, fmt.Errorf("%w: %s + %v", ErrSessionSealed, s.State, ev.Kind)
	}

	decision, ok := DecisionFor(s.State, ev.Kind)
	if !ok || !decision.Allowed {
		return illegalTransition(s, ev.Kind)
	}
	tr, ok := TransitionFor(s.State, ev.Kind)
	if !ok {
		return illegalTransition(s, ev.Kind)
	}

	switch ev.Kind {
	case EvDangerSignal:
		s.State = tr.To
		s.CreatedAt = now
	case EvCountdownElapsed:
		s.State = tr.To
		s.ActivatedAt = now
		s.DispatchPending = true
	case EvCancelRequested:
		s.State = tr.To
		s.Reason = tr.Reason
		s.ClosedAt = now
		if !s.DispatchPending {
			s.Sealed = true
		}
	case EvDispatchSettled:
		if ev.Outcome == nil {
			return Transition{}, ErrMissingOutcome
		}
		if !s.DispatchPending {
			return illegalTransition(s, ev.Kind)
		}
		applyOutcome(s, *ev.Outcome)
		if s.State == model.StateActive {
			tr.To, tr.Reason = ev.Outcome.TerminalReason()
			s.State = tr.To
			s.Reason = tr.Reason
			s.ClosedAt = now
		}
		s.DispatchPending = false
		s.Sealed = true
	default:
		return illegalTransition(s, ev.Kind)
	}

	return tr, nil
}

func applyOutcome(s *model.EmergencySession, out model.DispatchOutcome) {
	if out.Location != nil {
		loc := *out.Location
		s.Location = &loc
	} else {
		s.Location = nil
	}
	s.LocationNote = out.LocationNote
	s.Message = out.Message
	s.DispatchResults = append([]model.DeliveryResult(nil), out.Results...)
}
