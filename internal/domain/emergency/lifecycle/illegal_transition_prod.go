// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !debug

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

func illegalTransition(s *model.EmergencySession, ev EventKind) (Transition, error) {
	reason := ForbiddenTransitionReason(s.State, ev)
	if reason == "" {
		reason = ForbiddenOutOfOrder
	}
	return Transition{From: s.State, Event: ev}, fmt.Errorf("%w: %s + %v (%s)", ErrIllegalTransition, s.State, ev, reason)
}
