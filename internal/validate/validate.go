// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate collects field-level validation errors so a caller can
// report every problem at once.
package validate

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Error is one failed field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates errors. The zero value is ready to use.
type Validator struct {
	errors []Error
}

// ValidationError bundles every failed field.
type ValidationError struct {
	errors []Error
}

func New() *Validator {
	return &Validator{}
}

// Index names an element of a list field, e.g. Index("contacts", 2, "phone")
// is "contacts[2].phone".
func Index(list string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, i, field)
}

func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Err returns nil when no field failed.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// URL requires an absolute URL with one of the allowed schemes.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme) {
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
	}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
	}
}

func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

func (v *Validator) PositiveFloat(field string, value float64) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %g", value), value)
	}
}

// PositiveDuration rejects zero and negative durations.
func (v *Validator) PositiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.AddError(field, fmt.Sprintf("duration must be positive, got %s", d), d)
	}
}

// NonNegativeDuration accepts zero, which callers use to mean "no limit".
func (v *Validator) NonNegativeDuration(field string, d time.Duration) {
	if d < 0 {
		v.AddError(field, fmt.Sprintf("duration cannot be negative, got %s", d), d)
	}
}

// Together requires either both or neither of two optional fields.
func (v *Validator) Together(field string, a, b bool) {
	if a != b {
		v.AddError(field, "fields must be set together", nil)
	}
}

// FloatRange checks an inclusive bound.
func (v *Validator) FloatRange(field string, value, minVal, maxVal float64) {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %g and %g, got %g", minVal, maxVal, value), value)
	}
}

// ListenAddr accepts host:port with an optional host.
func (v *Validator) ListenAddr(field, addr string) {
	i := strings.LastIndex(addr, ":")
	if i < 0 || i == len(addr)-1 {
		v.AddError(field, "listen address must be host:port", addr)
	}
}
