// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"strings"
)

// SessionState is the lifecycle of one emergency session.
type SessionState string

const (
	StateIdle      SessionState = "IDLE"
	StateArming    SessionState = "ARMING"
	StateActive    SessionState = "ACTIVE"
	StateCancelled SessionState = "CANCELLED"
	StateCompleted SessionState = "COMPLETED"
	StateFailed    SessionState = "FAILED"
)

// IsTerminal returns true if the state is a final state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateCancelled, StateCompleted, StateFailed:
		return true
	}
	return false
}

// IsInProgress reports whether a session in this state blocks new sessions.
func (s SessionState) IsInProgress() bool {
	return s == StateArming || s == StateActive
}

// TriggerSource identifies which detector raised a danger signal.
type TriggerSource string

const (
	SourceManual TriggerSource = "manual"
	SourceVoice  TriggerSource = "voice"
	SourceShake  TriggerSource = "shake"
)

// Valid reports whether t is one of the known trigger sources.
func (t TriggerSource) Valid() bool {
	switch t {
	case SourceManual, SourceVoice, SourceShake:
		return true
	}
	return false
}

// ParseTriggerSource accepts the lower-case wire names, case-insensitively.
func ParseTriggerSource(raw string) (TriggerSource, error) {
	src := TriggerSource(strings.ToLower(strings.TrimSpace(raw)))
	if !src.Valid() {
		return "", fmt.Errorf("unknown trigger source %q", raw)
	}
	return src, nil
}

// ReasonCode is a compact, typed explanation of how a session ended.
// Keep these stable: metrics, the event log and the UI depend on them.
type ReasonCode string

const (
	RNone                    ReasonCode = "R_NONE"
	RUserCancelled           ReasonCode = "R_USER_CANCELLED"
	RCancelledDuringDispatch ReasonCode = "R_CANCELLED_DURING_DISPATCH"
	RNoContacts              ReasonCode = "R_NO_CONTACTS"
	RTransportUnavailable    ReasonCode = "R_TRANSPORT_UNAVAILABLE"
	RNoDeliveries            ReasonCode = "R_NO_DELIVERIES"
	RPartialDelivery         ReasonCode = "R_PARTIAL_DELIVERY"
	RInternal                ReasonCode = "R_INTERNAL"
)

// IsFailure reports whether r names a failure. The zero value counts as RNone.
func (r ReasonCode) IsFailure() bool {
	return r != "" && r != RNone
}

// Description is the user-facing wording for a reason code.
func (r ReasonCode) Description() string {
	switch r {
	case RNone:
		return "all contacts alerted"
	case RUserCancelled:
		return "cancelled before any alert was sent"
	case RCancelledDuringDispatch:
		return "cancelled while alerts may have been sent"
	case RNoContacts:
		return "no contacts configured"
	case RTransportUnavailable:
		return "messaging unavailable on this device"
	case RNoDeliveries:
		return "no deliveries succeeded"
	case RPartialDelivery:
		return "some contacts could not be reached"
	default:
		return "internal error"
	}
}

// SendFailureReason classifies why a single alert send failed.
type SendFailureReason string

const (
	FailureTransportUnavailable SendFailureReason = "TRANSPORT_UNAVAILABLE"
	FailureInvalidRecipient     SendFailureReason = "INVALID_RECIPIENT"
	FailureTimeout              SendFailureReason = "TIMEOUT"
	FailureUnknown              SendFailureReason = "UNKNOWN"
)
