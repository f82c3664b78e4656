// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g, err := NewGateway(GatewayOptions{
		BaseURL:          srv.URL + "/",
		Token:            "secret",
		Timeout:          time.Second,
		RatePerSecond:    1000,
		Burst:            100,
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
	})
	require.NoError(t, err)
	return g, &hits
}

func TestGateway_SendPostsJSON(t *testing.T) {
	var got sendRequest
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, messagesPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "guardian", r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, g.Send(context.Background(), "+4915112345678", "help"))
	assert.Equal(t, sendRequest{To: "+4915112345678", Text: "help"}, got)
	assert.NoError(t, g.Available(context.Background()))
}

func TestGateway_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   model.SendFailureReason
	}{
		{http.StatusBadRequest, model.FailureInvalidRecipient},
		{http.StatusNotFound, model.FailureInvalidRecipient},
		{http.StatusUnprocessableEntity, model.FailureInvalidRecipient},
		{http.StatusUnauthorized, model.FailureTransportUnavailable},
		{http.StatusTooManyRequests, model.FailureTransportUnavailable},
		{http.StatusBadGateway, model.FailureTransportUnavailable},
		{http.StatusConflict, model.FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			g, _ := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})
			err := g.Send(context.Background(), "+1", "x")
			require.Error(t, err)
			assert.Equal(t, tc.want, model.ClassifySendError(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestGateway_InvalidRecipientDoesNotTripBreaker(t *testing.T) {
	g, hits := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	for range 5 {
		assert.Equal(t, model.FailureInvalidRecipient, model.ClassifySendError(g.Send(context.Background(), "bad", "x")))
	}
	assert.EqualValues(t, 5, hits.Load())
	assert.NoError(t, g.Available(context.Background()))
}

func TestGateway_OutageOpensBreaker(t *testing.T) {
	g, hits := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	for range 2 {
		require.Error(t, g.Send(context.Background(), "+1", "x"))
	}
	require.EqualValues(t, 2, hits.Load())

	err := g.Available(context.Background())
	assert.ErrorIs(t, err, model.ErrTransportUnavailable)

	err = g.Send(context.Background(), "+1", "x")
	assert.Equal(t, model.FailureTransportUnavailable, model.ClassifySendError(err))
	assert.EqualValues(t, 2, hits.Load(), "open breaker must not reach the gateway")
}

func TestGateway_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := g.Send(ctx, "+1", "x")
	assert.Equal(t, model.FailureTimeout, model.ClassifySendError(err))
}

func TestNewGateway_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		_, err := NewGateway(GatewayOptions{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestLogTransport(t *testing.T) {
	lt := NewLogTransport()
	require.NoError(t, lt.Available(context.Background()))
	require.NoError(t, lt.Send(context.Background(), "+4915112345678", "help"))
	assert.EqualValues(t, 1, lt.Sent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, lt.Send(ctx, "+1", "x"), context.Canceled)
}
