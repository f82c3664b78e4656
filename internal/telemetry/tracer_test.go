// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_NoopExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "noop"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http, noop)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "guardian-test",
		ExporterType: "http",
		Endpoint:     "localhost:4318",
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, provider.tp)

	_, span := Tracer("test").Start(context.Background(), SpanDispatch)
	assert.True(t, span.IsRecording())
	span.End()

	_ = provider.Shutdown(context.Background())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1.0).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestAttributes(t *testing.T) {
	attrs := SessionAttributes("s-1", "")
	assert.Equal(t, []attribute.KeyValue{attribute.String(SessionIDKey, "s-1")}, attrs)

	attrs = DispatchAttributes(3, 2, "R_PARTIAL_DELIVERY")
	assert.Len(t, attrs, 3)
	assert.Equal(t, attribute.String(FailureReasonKey, "R_PARTIAL_DELIVERY"), attrs[2])

	assert.Len(t, DispatchAttributes(1, 1, ""), 2)
	assert.Equal(t, attribute.String(ErrorTypeKey, "TIMEOUT"), ErrorAttributes("TIMEOUT")[1])
}
