// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldContactID     = "contact_id"
	FieldNotification  = "notification_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Emergency fields
	FieldTriggerSource = "trigger_source"
	FieldReason        = "reason"
	FieldPhone         = "phone"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
