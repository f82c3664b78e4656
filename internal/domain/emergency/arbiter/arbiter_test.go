// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/guardian/internal/domain/emergency/dispatch"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/testkit"
)

func TestSignalDanger_SingleFlightUnderConcurrency(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})
	sources := []model.TriggerSource{model.SourceManual, model.SourceVoice, model.SourceShake}

	var (
		mu      sync.Mutex
		results []SignalResult
		wg      sync.WaitGroup
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.arb.SignalDanger(context.Background(), sources[i%len(sources)])
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	created, annotated := 0, 0
	ids := map[string]struct{}{}
	for _, r := range results {
		ids[r.SessionID] = struct{}{}
		switch r.Outcome {
		case OutcomeCreated:
			created++
		case OutcomeAnnotated:
			annotated++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, annotated, "each other source is annotated exactly once")
	assert.Len(t, ids, 1)

	snap := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateArming, snap.State)
	assert.Len(t, snap.SecondaryTriggers, 2)
	assert.Equal(t, 1, h.clock.Pending(), "exactly one countdown timer")
}

func TestSignalDanger_ArmsCountdown(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})

	res := h.signal(model.SourceVoice)
	assert.Equal(t, OutcomeCreated, res.Outcome)

	snap := h.arb.CurrentSessionState()
	assert.Equal(t, res.SessionID, snap.ID)
	assert.Equal(t, model.StateArming, snap.State)
	assert.Equal(t, model.SourceVoice, snap.TriggerSource)
	assert.Equal(t, t0, snap.CreatedAt)
	assert.Equal(t, t0.Add(countdown), snap.ArmingDeadline)
}

func TestSignalDanger_InvalidSource(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, err := h.arb.SignalDanger(context.Background(), model.TriggerSource("telepathy"))
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.Equal(t, model.StateIdle, h.arb.CurrentSessionState().State)
}

func TestCancel_DuringArmingSendsNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(3)})

	h.signal(model.SourceShake)
	h.clock.Advance(time.Second)
	snap := h.cancel()

	assert.Equal(t, model.StateCancelled, snap.State)
	assert.Equal(t, model.RUserCancelled, snap.Reason)
	assert.True(t, snap.Sealed)
	assert.Equal(t, 0, h.clock.Pending(), "countdown timer must be stopped")

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, model.StateCancelled, h.arb.CurrentSessionState().State)
	assert.Equal(t, 0, h.transport.CallCount())
	assert.Equal(t, 0, h.contacts.Reads(), "no dispatch, so contacts are never read")

	n := h.waitNotification()
	assert.Equal(t, model.NotifyInfo, n.Kind)
	require.Len(t, h.eventLog.Entries(), 1)
	assert.Equal(t, model.StateCancelled, h.eventLog.Entries()[0].Session.State)
}

func TestScenario_SecondaryShakeThenCancel(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(2)})

	first := h.signal(model.SourceManual)
	h.clock.Advance(500 * time.Millisecond)
	second := h.signal(model.SourceShake)
	assert.Equal(t, OutcomeAnnotated, second.Outcome)
	assert.Equal(t, first.SessionID, second.SessionID)

	h.clock.Advance(500 * time.Millisecond)
	snap := h.cancel()

	assert.Equal(t, model.StateCancelled, snap.State)
	want := []model.SecondaryTrigger{{Source: model.SourceShake, At: t0.Add(500 * time.Millisecond)}}
	if diff := cmp.Diff(want, snap.SecondaryTriggers); diff != "" {
		t.Fatalf("secondary triggers (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, h.transport.CallCount())
	h.waitNotification()
}

func TestSecondaryTrigger_DoesNotResetCountdown(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})

	h.signal(model.SourceManual)
	h.clock.Advance(2 * time.Second)
	h.signal(model.SourceVoice)
	h.signal(model.SourceManual)
	h.clock.Advance(time.Second)

	n := h.waitNotification()
	assert.Equal(t, model.NotifySuccess, n.Kind)
	snap := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateCompleted, snap.State)
	assert.Equal(t, t0.Add(countdown), snap.ActivatedAt)
}

func TestScenario_ThreeContactsSecondFails(t *testing.T) {
	contacts := testkit.Contacts(3)
	h := newHarness(t, harnessOpts{
		contacts: contacts,
		location: testkit.FixedLocation{Coords: testCoords, Delay: time.Second},
	})
	h.transport.FailFor(contacts[1].Phone, model.ErrInvalidRecipient)

	h.signal(model.SourceManual)
	h.clock.Advance(countdown)

	n := h.waitNotification()
	snap := h.arb.CurrentSessionState()

	assert.Equal(t, model.StateCompleted, snap.State)
	assert.Equal(t, model.RPartialDelivery, snap.Reason)
	assert.True(t, snap.Sealed)
	want := []model.DeliveryResult{
		{ContactID: "c1", Delivered: true},
		{ContactID: "c2", Reason: model.FailureInvalidRecipient},
		{ContactID: "c3", Delivered: true},
	}
	opts := cmpopts.IgnoreFields(model.DeliveryResult{}, "ContactName", "Phone", "Detail")
	if diff := cmp.Diff(want, snap.DispatchResults, opts); diff != "" {
		t.Fatalf("dispatch results (-want +got):\n%s", diff)
	}
	require.NotNil(t, snap.Location)
	assert.Contains(t, snap.Message, testCoords.MapURL())

	require.Len(t, h.eventLog.Entries(), 1)
	assert.Equal(t, model.NotifyDegraded, n.Kind)
	assert.Equal(t, []string{"Contact 2"}, n.UnreachedContacts)
	h.expectNoNotification(50 * time.Millisecond)
}

func TestCancel_DuringActiveKeepsRealResults(t *testing.T) {
	contacts := testkit.Contacts(2)
	h := newHarness(t, harnessOpts{contacts: contacts})
	h.transport.Hold()

	h.signal(model.SourceManual)
	h.clock.Advance(countdown)
	<-h.transport.Started()
	<-h.transport.Started()

	snap := h.cancel()
	assert.Equal(t, model.StateCancelled, snap.State)
	assert.Equal(t, model.RCancelledDuringDispatch, snap.Reason)
	assert.True(t, snap.DispatchPending)
	assert.False(t, snap.Sealed)
	h.expectNoNotification(50 * time.Millisecond)

	h.transport.Release()
	n := h.waitNotification()
	assert.Equal(t, model.NotifyWarning, n.Kind)

	final := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateCancelled, final.State)
	assert.Equal(t, model.RCancelledDuringDispatch, final.Reason)
	assert.True(t, final.Sealed)
	assert.False(t, final.DispatchPending)
	assert.Equal(t, 2, final.DeliveredCount(), "sends already issued are not aborted")
	assert.Equal(t, 2, h.transport.CallCount())

	entries := h.eventLog.Entries()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Session.DispatchResults, 2)
}

func TestCancel_IdleIsNoop(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	snap := h.cancel()
	assert.Equal(t, model.StateIdle, snap.State)
	h.expectNoNotification(20 * time.Millisecond)
}

func TestDispatch_NoContactsFails(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	h.signal(model.SourceManual)
	h.clock.Advance(countdown)
	n := h.waitNotification()

	snap := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateFailed, snap.State)
	assert.Equal(t, model.RNoContacts, snap.Reason)
	assert.Equal(t, 0, h.transport.CallCount())
	assert.Equal(t, model.NotifyError, n.Kind)
}

func TestDispatch_AllContactsFail(t *testing.T) {
	contacts := testkit.Contacts(2)
	h := newHarness(t, harnessOpts{contacts: contacts})
	for _, c := range contacts {
		h.transport.FailFor(c.Phone, model.ErrTransportUnavailable)
	}

	h.signal(model.SourceVoice)
	h.clock.Advance(countdown)
	h.waitNotification()

	snap := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateFailed, snap.State)
	assert.Equal(t, model.RNoDeliveries, snap.Reason)
	assert.Len(t, snap.FailedDeliveries(), 2)
}

func TestDispatch_LocationTimeoutStillCompletes(t *testing.T) {
	loc := testkit.NewNeverLocation()
	t.Cleanup(loc.Stop)
	h := newHarness(t, harnessOpts{
		contacts:        testkit.Contacts(1),
		location:        loc,
		locationTimeout: 100 * time.Millisecond,
	})

	start := time.Now()
	h.signal(model.SourceManual)
	h.clock.Advance(countdown)
	h.waitNotification()
	assert.Less(t, time.Since(start), 2*time.Second)

	snap := h.arb.CurrentSessionState()
	assert.Equal(t, model.StateCompleted, snap.State)
	assert.Nil(t, snap.Location)
	assert.Contains(t, snap.Message, dispatch.LocationUnavailableText)
}

func TestRecorder_AppendFailureStillTerminal(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})
	h.eventLog.FailWith(errors.New("read-only filesystem"))

	h.signal(model.SourceManual)
	h.clock.Advance(countdown)
	n := h.waitNotification()

	assert.Equal(t, model.StateCompleted, h.arb.CurrentSessionState().State)
	assert.Equal(t, model.NotifyDegraded, n.Kind)
	assert.False(t, n.Recorded)
	h.expectNoNotification(50 * time.Millisecond)
}

func TestNewIdlePeriodCreatesNewSession(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})

	first := h.signal(model.SourceManual)
	h.cancel()
	h.waitNotification()

	second := h.signal(model.SourceManual)
	assert.Equal(t, OutcomeCreated, second.Outcome)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	old, err := h.arb.Session(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, old.State)
}

func TestStateChanges_PublishedInOrder(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})

	h.signal(model.SourceManual)
	h.clock.Advance(countdown)
	h.waitNotification()

	got := h.collectChanges(3)
	pairs := make([][2]model.SessionState, len(got))
	for i, c := range got {
		pairs[i] = [2]model.SessionState{c.From, c.To}
	}
	want := [][2]model.SessionState{
		{model.StateIdle, model.StateArming},
		{model.StateArming, model.StateActive},
		{model.StateActive, model.StateCompleted},
	}
	assert.Equal(t, want, pairs)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(2)})
	h.signal(model.SourceManual)
	h.signal(model.SourceShake)

	snap := h.arb.CurrentSessionState()
	snap.SecondaryTriggers[0].Source = model.SourceVoice
	snap.State = model.StateFailed

	again := h.arb.CurrentSessionState()
	assert.Equal(t, model.SourceShake, again.SecondaryTriggers[0].Source)
	assert.Equal(t, model.StateArming, again.State)
}

func TestClose_WaitsForArmedCountdownAndRejectsNewSignals(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})
	h.signal(model.SourceManual)

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closed <- h.arb.Close(ctx)
	}()

	select {
	case err := <-closed:
		t.Fatalf("Close returned before the countdown fired: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	h.clock.Advance(countdown)
	require.NoError(t, <-closed)
	assert.Equal(t, model.StateCompleted, h.arb.CurrentSessionState().State)
	assert.Equal(t, 1, h.transport.CallCount())

	_, err := h.arb.SignalDanger(context.Background(), model.SourceVoice)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_DrainsAfterArmingSessionIsCancelled(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})
	h.signal(model.SourceManual)
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.arb.Close(ctx))
	assert.Zero(t, h.transport.CallCount())
}

func TestClose_TimesOutWhenCountdownNeverFires(t *testing.T) {
	h := newHarness(t, harnessOpts{contacts: testkit.Contacts(1)})
	h.signal(model.SourceManual)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.arb.Close(ctx), context.DeadlineExceeded)

	// Releasing the countdown lets the cleanup Close drain.
	h.cancel()
}
