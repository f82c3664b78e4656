// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/guardian/internal/bus"
	"github.com/ManuGH/guardian/internal/domain/emergency/dispatch"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/domain/emergency/recorder"
	"github.com/ManuGH/guardian/internal/domain/emergency/testkit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	t0         = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testCoords = model.Coordinates{Latitude: 48.137154, Longitude: 11.576124}
)

const countdown = 3 * time.Second

type harness struct {
	t         *testing.T
	clock     *testkit.ManualClock
	contacts  *testkit.StaticContacts
	transport *testkit.ScriptedTransport
	eventLog  *testkit.RecordingLog
	bus       *bus.MemoryBus
	arb       *Arbiter
	notes     ports.Subscription
	changes   ports.Subscription
}

type harnessOpts struct {
	location        ports.LocationProvider
	locationTimeout time.Duration
	contacts        []model.EmergencyContact
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.location == nil {
		opts.location = testkit.FixedLocation{Coords: testCoords}
	}
	if opts.locationTimeout == 0 {
		opts.locationTimeout = 5 * time.Second
	}

	h := &harness{
		t:         t,
		clock:     testkit.NewManualClock(t0),
		contacts:  testkit.NewStaticContacts(opts.contacts...),
		transport: testkit.NewScriptedTransport(),
		eventLog:  testkit.NewRecordingLog(),
		bus:       bus.NewMemoryBus(),
	}
	coord := dispatch.New(dispatch.Config{LocationTimeout: opts.locationTimeout, SendTimeout: 2 * time.Second},
		h.contacts, opts.location, h.transport)
	rec := recorder.New(h.eventLog, h.bus, recorder.WithBackendName("test"))

	arb, err := New(Config{CountdownWindow: countdown}, Deps{
		Clock:      h.clock,
		Dispatcher: coord,
		Recorder:   rec,
		Bus:        h.bus,
	})
	require.NoError(t, err)
	h.arb = arb

	h.notes, err = arb.Notifications(context.Background())
	require.NoError(t, err)
	h.changes, err = arb.StateChanges(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.transport.Release()
		// Close waits for armed countdowns, and the manual clock never fires
		// them on its own.
		_, err := arb.CancelActiveSession(ctx)
		require.NoError(t, err)
		require.NoError(t, arb.Close(ctx))
		_ = h.notes.Close()
		_ = h.changes.Close()
	})
	return h
}

func (h *harness) signal(src model.TriggerSource) SignalResult {
	h.t.Helper()
	res, err := h.arb.SignalDanger(context.Background(), src)
	require.NoError(h.t, err)
	return res
}

func (h *harness) cancel() model.SessionSnapshot {
	h.t.Helper()
	snap, err := h.arb.CancelActiveSession(context.Background())
	require.NoError(h.t, err)
	return snap
}

func (h *harness) waitNotification() model.Notification {
	h.t.Helper()
	select {
	case v := <-h.notes.C():
		n, ok := v.(model.Notification)
		require.True(h.t, ok, "unexpected bus payload %T", v)
		return n
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for notification")
		return model.Notification{}
	}
}

func (h *harness) expectNoNotification(wait time.Duration) {
	h.t.Helper()
	select {
	case v := <-h.notes.C():
		h.t.Fatalf("unexpected notification: %+v", v)
	case <-time.After(wait):
	}
}

// collectChanges reads n state changes from the state topic.
func (h *harness) collectChanges(n int) []model.StateChange {
	h.t.Helper()
	out := make([]model.StateChange, 0, n)
	for len(out) < n {
		select {
		case v := <-h.changes.C():
			out = append(out, v.(model.StateChange))
		case <-time.After(5 * time.Second):
			h.t.Fatalf("timed out after %d of %d state changes", len(out), n)
		}
	}
	return out
}
