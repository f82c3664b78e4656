// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"context"
	"errors"
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrInvalidRecipient     = errors.New("invalid recipient")
)

// SendError carries a typed failure reason for one alert send.
type SendError struct {
	Reason SendFailureReason
	Err    error
}

func (e *SendError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "send failed: " + string(e.Reason)
	}
	return "send failed: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ClassifySendError maps a transport error onto a SendFailureReason.
func ClassifySendError(err error) SendFailureReason {
	var se *SendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se) && se.Reason != "":
		return se.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrTransportUnavailable):
		return FailureTransportUnavailable
	case errors.Is(err, ErrInvalidRecipient):
		return FailureInvalidRecipient
	default:
		return FailureUnknown
	}
}
