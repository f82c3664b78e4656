// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SecondaryTrigger records a danger signal that arrived while a session was already in progress.
type SecondaryTrigger struct {
	Source TriggerSource `json:"source"`
	At     time.Time     `json:"at"`
}

// DeliveryResult is the outcome of one alert send.
type DeliveryResult struct {
	ContactID   string            `json:"contactId"`
	ContactName string            `json:"contactName,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Delivered   bool              `json:"delivered"`
	Reason      SendFailureReason `json:"reason,omitempty"`
	Detail      string            `json:"detail,omitempty"`
}

// EmergencySession is the arbiter-owned mutable record. Only the arbiter
// mutates it, under its lock; everything else sees SessionSnapshot copies.
type EmergencySession struct {
	ID                string
	State             SessionState
	TriggerSource     TriggerSource
	SecondaryTriggers []SecondaryTrigger
	CreatedAt         time.Time
	ArmingDeadline    time.Time
	ActivatedAt       time.Time
	Location          *Coordinates
	LocationNote      string
	Message           string
	DispatchResults   []DeliveryResult
	DispatchPending   bool
	Reason            ReasonCode
	ClosedAt          time.Time
	Sealed            bool
}

// SessionSnapshot is a read-only copy of an EmergencySession.
// The field list must stay identical to EmergencySession.
type SessionSnapshot struct {
	ID                string             `json:"id,omitempty"`
	State             SessionState       `json:"state"`
	TriggerSource     TriggerSource      `json:"triggerSource,omitempty"`
	SecondaryTriggers []SecondaryTrigger `json:"secondaryTriggers,omitempty"`
	CreatedAt         time.Time          `json:"createdAt,omitempty"`
	ArmingDeadline    time.Time          `json:"armingDeadline,omitempty"`
	ActivatedAt       time.Time          `json:"activatedAt,omitempty"`
	Location          *Coordinates       `json:"location,omitempty"`
	LocationNote      string             `json:"locationNote,omitempty"`
	Message           string             `json:"message,omitempty"`
	DispatchResults   []DeliveryResult   `json:"dispatchResults,omitempty"`
	DispatchPending   bool               `json:"dispatchPending,omitempty"`
	Reason            ReasonCode         `json:"reason,omitempty"`
	ClosedAt          time.Time          `json:"closedAt,omitempty"`
	Sealed            bool               `json:"sealed,omitempty"`
}

// IdleSnapshot describes the arbiter before any session has been created.
func IdleSnapshot() SessionSnapshot {
	return SessionSnapshot{State: StateIdle}
}

// Snapshot returns a deep copy that shares no memory with s.
func (s *EmergencySession) Snapshot() SessionSnapshot {
	if s == nil {
		return IdleSnapshot()
	}
	snap := SessionSnapshot(*s)
	return snap.Clone()
}

// Clone returns a deep copy of the snapshot.
func (s SessionSnapshot) Clone() SessionSnapshot {
	out := s
	if s.SecondaryTriggers != nil {
		out.SecondaryTriggers = append([]SecondaryTrigger(nil), s.SecondaryTriggers...)
	}
	if s.DispatchResults != nil {
		out.DispatchResults = append([]DeliveryResult(nil), s.DispatchResults...)
	}
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	return out
}

// FailedDeliveries returns the failed subset of DispatchResults, in contact order.
func (s SessionSnapshot) FailedDeliveries() []DeliveryResult {
	var failed []DeliveryResult
	for _, r := range s.DispatchResults {
		if !r.Delivered {
			failed = append(failed, r)
		}
	}
	return failed
}

// DeliveredCount returns how many contacts were reached.
func (s SessionSnapshot) DeliveredCount() int {
	n := 0
	for _, r := range s.DispatchResults {
		if r.Delivered {
			n++
		}
	}
	return n
}

// HasSecondary reports whether src was already recorded as a secondary trigger.
func (s *EmergencySession) HasSecondary(src TriggerSource) bool {
	for _, st := range s.SecondaryTriggers {
		if st.Source == src {
			return true
		}
	}
	return false
}
