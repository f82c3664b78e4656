// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/guardian/internal/log"
)

// LogTransport writes alerts to the log instead of sending them. It backs the
// "log" transport mode used for dry runs.
type LogTransport struct {
	logger zerolog.Logger
	sent   atomic.Int64
}

func NewLogTransport() *LogTransport {
	return &LogTransport{logger: log.WithComponent("transport")}
}

func (t *LogTransport) Available(context.Context) error { return nil }

func (t *LogTransport) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.sent.Add(1)
	t.logger.Info().
		Str(log.FieldEvent, "transport.dry_run").
		Str(log.FieldPhone, log.MaskPhone(phone)).
		Str("message", message).
		Msg("alert not sent (log transport)")
	return nil
}

// Sent reports how many alerts were logged.
func (t *LogTransport) Sent() int64 { return t.sent.Load() }
