// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
	sessionIDKey
)

// contextFields maps context keys onto the log fields WithContext adds, in
// output order.
var contextFields = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{correlationIDKey, FieldCorrelationID},
	{sessionIDKey, FieldSessionID},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return withValue(ctx, correlationIDKey, id)
}

// ContextWithSessionID tags ctx with an emergency session so every log line
// written through WithContext carries session_id.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestIDKey) }
func CorrelationIDFromContext(ctx context.Context) string { return stringValue(ctx, correlationIDKey) }
func SessionIDFromContext(ctx context.Context) string { return stringValue(ctx, sessionIDKey) }

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithContext adds the correlation fields found in ctx to logger. The logger
// is returned unchanged when ctx carries none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	var b *zerolog.Context
	for _, f := range contextFields {
		v := stringValue(ctx, f.key)
		if v == "" {
			continue
		}
		if b == nil {
			c := logger.With()
			b = &c
		}
		*b = b.Str(f.field, v)
	}
	if b == nil {
		return logger
	}
	return b.Logger()
}

func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the logger stored in ctx by zerolog's WithContext, or
// the base logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	b := Base()
	return &b
}
