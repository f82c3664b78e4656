// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "errors"

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrSessionSealed     = errors.New("session sealed")
	ErrMissingOutcome    = errors.New("dispatch outcome missing")
)
