// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

// NewSession applies IDLE -> ARMING for the first accepted danger signal.
func NewSession(id string, src model.TriggerSource, now time.Time, countdown time.Duration) *model.EmergencySession {
	return &model.EmergencySession{
		ID:             id,
		State:          model.StateArming,
		TriggerSource:  src,
		CreatedAt:      now,
		ArmingDeadline: now.Add(countdown),
		Reason:         model.RNone,
	}
}
