// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build debug

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

func illegalTransition(s *model.EmergencySession, ev EventKind) (Transition, error) {
	panic(fmt.Sprintf("illegal transition: %s + %v", s.State, ev))
}
