// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package location provides the position sources used when an alert is sent.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
)

// Static always reports the same configured position.
type Static struct {
	Coords model.Coordinates
}

func (s Static) Current(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	if !s.Coords.Valid() {
		return model.Coordinates{}, fmt.Errorf("%w: static position out of range", ports.ErrLocationUnavailable)
	}
	return s.Coords, nil
}

// LatestFix is the read side of a location history.
type LatestFix interface {
	Latest(ctx context.Context) (model.Coordinates, error)
}

// HistoryProvider reports the newest recorded fix as long as it is younger
// than MaxAge. A zero MaxAge accepts any age.
type HistoryProvider struct {
	source LatestFix
	maxAge time.Duration
	now    func() time.Time
}

func NewHistoryProvider(source LatestFix, maxAge time.Duration) *HistoryProvider {
	return &HistoryProvider{source: source, maxAge: maxAge, now: time.Now}
}

func (h *HistoryProvider) Current(ctx context.Context) (model.Coordinates, error) {
	c, err := h.source.Latest(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Coordinates{}, ctxErr
		}
		return model.Coordinates{}, fmt.Errorf("%w: %v", ports.ErrLocationUnavailable, err)
	}
	if h.maxAge > 0 && !c.FixedAt.IsZero() {
		if age := h.now().Sub(c.FixedAt); age > h.maxAge {
			return model.Coordinates{}, fmt.Errorf("%w: last fix is %s old", ports.ErrLocationUnavailable, age.Truncate(time.Second))
		}
	}
	return c, nil
}

// Chain asks each provider in turn and returns the first position found. All
// providers share the caller's deadline.
type Chain []ports.LocationProvider

func (c Chain) Current(ctx context.Context) (model.Coordinates, error) {
	var errs []error
	for i, p := range c {
		coords, err := p.Current(ctx)
		if err == nil {
			return coords, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Coordinates{}, ctxErr
		}
		log.FromContext(ctx).Debug().Err(err).Int("provider", i).Msg("location provider had no fix")
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return model.Coordinates{}, fmt.Errorf("%w: no providers configured", ports.ErrLocationUnavailable)
	}
	return model.Coordinates{}, fmt.Errorf("%w: %w", ports.ErrLocationUnavailable, errors.Join(errs...))
}
