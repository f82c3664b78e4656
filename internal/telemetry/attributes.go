// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span names.
const (
	SpanDispatch = "emergency.dispatch"
	SpanLocation = "emergency.location"
	SpanSend     = "emergency.send"
	SpanResend   = "emergency.resend"
	SpanGateway  = "transport.gateway.request"
)

// Attribute keys shared by emergency spans.
const (
	SessionIDKey     = "session.id"
	TriggerSourceKey = "session.trigger_source"
	ContactIDKey     = "contact.id"
	ContactCountKey  = "dispatch.contacts"
	DeliveredKey     = "dispatch.delivered"
	FailureReasonKey = "dispatch.failure_reason"
	LocationKey      = "location.outcome"
	ErrorKey         = "error"
	ErrorTypeKey     = "error.type"
	HTTPMethodKey    = "http.method"
	HTTPRouteKey     = "http.route"
	HTTPStatusKey    = "http.status_code"
)

// SessionAttributes identifies the session a span belongs to.
func SessionAttributes(sessionID, source string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(SessionIDKey, sessionID)}
	if source != "" {
		attrs = append(attrs, attribute.String(TriggerSourceKey, source))
	}
	return attrs
}

// DispatchAttributes summarises a finished fan-out.
func DispatchAttributes(contacts, delivered int, failure string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(ContactCountKey, contacts),
		attribute.Int(DeliveredKey, delivered),
	}
	if failure != "" {
		attrs = append(attrs, attribute.String(FailureReasonKey, failure))
	}
	return attrs
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// HTTPAttributes describes one outbound HTTP call. A zero status is omitted.
func HTTPAttributes(method, route string, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(HTTPStatusKey, status))
	}
	return attrs
}
