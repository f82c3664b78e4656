// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package transport delivers alert texts to phone numbers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/resilience"
	"github.com/ManuGH/guardian/internal/telemetry"
)

const (
	messagesPath = "/v1/messages"

	defaultTimeout          = 10 * time.Second
	defaultRatePerSecond    = 5
	defaultBurst            = 10
	defaultBreakerThreshold = 3
	defaultBreakerReset     = 30 * time.Second
	maxErrorBody            = 4 << 10
)

// GatewayOptions configures the SMS gateway client.
type GatewayOptions struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration
	UserAgent        string
}

// Gateway posts each alert to an HTTP SMS gateway. Sends are rate limited and
// guarded by a circuit breaker; rejected recipients do not trip the breaker.
type Gateway struct {
	endpoint   string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type gatewayError struct {
	Error string `json:"error"`
}

func NewGateway(opts GatewayOptions) (*Gateway, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", opts.BaseURL)
	}
	opts = normalizeOptions(opts)

	return &Gateway{
		endpoint:  base + messagesPath,
		token:     opts.Token,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          20,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
				TLSHandshakeTimeout:   5 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: resilience.NewCircuitBreaker("sms_gateway", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailurePredicate(countsAgainstGateway)),
	}, nil
}

func normalizeOptions(opts GatewayOptions) GatewayOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRatePerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "guardian"
	}
	return opts
}

// countsAgainstGateway keeps recipient problems and caller cancellation from
// opening the breaker.
func countsAgainstGateway(err error) bool {
	return !errors.Is(err, model.ErrInvalidRecipient) && !errors.Is(err, context.Canceled)
}

// Available fails while the breaker is open.
func (g *Gateway) Available(context.Context) error {
	if err := g.breaker.Allow(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err)
	}
	return nil
}

func (g *Gateway) Send(ctx context.Context, phone, message string) error {
	err := g.breaker.Execute(func() error { return g.post(ctx, phone, message) })
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &model.SendError{Reason: model.FailureTransportUnavailable, Err: fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err)}
	}
	return err
}

func (g *Gateway) post(ctx context.Context, phone, message string) error {
	ctx, span := telemetry.Tracer("guardian.transport").Start(ctx, telemetry.SpanGateway, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := g.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	body, err := json.Marshal(sendRequest{To: phone, Text: message})
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &model.SendError{Reason: model.FailureTransportUnavailable, Err: fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(telemetry.HTTPAttributes(http.MethodPost, messagesPath, resp.StatusCode)...)
	if resp.StatusCode < http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		span.SetStatus(codes.Ok, "")
		return nil
	}
	span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))

	sendErr := classifyStatus(resp.StatusCode, readGatewayError(resp.Body))
	log.FromContext(ctx).Warn().
		Str(log.FieldEvent, "transport.gateway_rejected").
		Str(log.FieldPhone, log.MaskPhone(phone)).
		Int("status", resp.StatusCode).
		Err(sendErr).
		Msg("gateway rejected alert")
	return sendErr
}

func readGatewayError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var ge gatewayError
	if json.Unmarshal(data, &ge) == nil && ge.Error != "" {
		return ge.Error
	}
	return strings.TrimSpace(string(data))
}

func classifyStatus(status int, detail string) error {
	cause := fmt.Sprintf("gateway returned %d", status)
	if detail != "" {
		cause += ": " + detail
	}
	switch {
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		return &model.SendError{Reason: model.FailureInvalidRecipient, Err: fmt.Errorf("%w: %s", model.ErrInvalidRecipient, cause)}
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return &model.SendError{Reason: model.FailureTransportUnavailable, Err: fmt.Errorf("%w: %s", model.ErrTransportUnavailable, cause)}
	default:
		return &model.SendError{Reason: model.FailureUnknown, Err: errors.New(cause)}
	}
}
