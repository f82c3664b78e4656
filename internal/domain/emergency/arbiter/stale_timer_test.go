// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package arbiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/guardian/internal/domain/emergency/dispatch"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/domain/emergency/recorder"
	"github.com/ManuGH/guardian/internal/domain/emergency/testkit"
)

// lateClock models a timer whose callback is already running when Stop is
// called: Stop reports false and the test fires the callback afterwards.
type lateClock struct {
	mu  sync.Mutex
	fns []func()
}

func (c *lateClock) Now() time.Time { return t0 }

func (c *lateClock) AfterFunc(_ time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, f)
	return lateTimer{}
}

func (c *lateClock) fireAll() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type lateTimer struct{}

func (lateTimer) Stop() bool { return false }

func TestCancel_StaleTimerCannotReviveSession(t *testing.T) {
	clock := &lateClock{}
	transport := testkit.NewScriptedTransport()
	eventLog := testkit.NewRecordingLog()
	coord := dispatch.New(dispatch.Config{}, testkit.NewStaticContacts(testkit.Contacts(2)...),
		testkit.FixedLocation{Coords: testCoords}, transport)

	arb, err := New(Config{}, Deps{
		Clock:      clock,
		Dispatcher: coord,
		Recorder:   recorder.New(eventLog, nil),
	})
	require.NoError(t, err)

	_, err = arb.SignalDanger(context.Background(), model.SourceManual)
	require.NoError(t, err)
	_, err = arb.CancelActiveSession(context.Background())
	require.NoError(t, err)

	clock.fireAll()

	snap := arb.CurrentSessionState()
	assert.Equal(t, model.StateCancelled, snap.State)
	assert.Equal(t, 0, transport.CallCount())
	assert.Len(t, eventLog.Entries(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, arb.Close(ctx), "the late callback releases the countdown slot")
}
