// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/guardian/internal/bus"
	"github.com/ManuGH/guardian/internal/domain/emergency/arbiter"
	"github.com/ManuGH/guardian/internal/domain/emergency/dispatch"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/recorder"
	"github.com/ManuGH/guardian/internal/domain/emergency/store"
	"github.com/ManuGH/guardian/internal/domain/emergency/testkit"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const countdown = 3 * time.Second

type fixture struct {
	srv       *httptest.Server
	clock     *testkit.ManualClock
	transport *testkit.ScriptedTransport
	eventLog  *store.MemoryLog
	arb       *arbiter.Arbiter
	book      *memoryBook
	fixes     *fixSink
}

type memoryBook struct {
	list []model.EmergencyContact
}

func (b *memoryBook) List(context.Context) ([]model.EmergencyContact, error) { return b.list, nil }

func (b *memoryBook) Replace(_ context.Context, list []model.EmergencyContact) error {
	b.list = list
	return nil
}

type fixSink struct {
	got []model.Coordinates
}

func (f *fixSink) Record(_ context.Context, c model.Coordinates) error {
	f.got = append(f.got, c)
	return nil
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	f := &fixture{
		clock:     testkit.NewManualClock(t0),
		transport: testkit.NewScriptedTransport(),
		eventLog:  store.NewMemoryLog(),
		book:      &memoryBook{},
		fixes:     &fixSink{},
	}
	memBus := bus.NewMemoryBus()
	coord := dispatch.New(dispatch.Config{LocationTimeout: time.Second, SendTimeout: time.Second},
		testkit.NewStaticContacts(testkit.Contacts(2)...),
		testkit.FixedLocation{Coords: model.Coordinates{Latitude: 52.52, Longitude: 13.405}},
		f.transport)
	arb, err := arbiter.New(arbiter.Config{CountdownWindow: countdown}, arbiter.Deps{
		Clock:      f.clock,
		Dispatcher: coord,
		Recorder:   recorder.New(f.eventLog, memBus),
		Bus:        memBus,
	})
	require.NoError(t, err)
	f.arb = arb

	deps.Emergency = arb
	deps.History = f.eventLog
	if deps.Contacts == nil {
		deps.Contacts = f.book
	}
	if deps.Locations == nil {
		deps.Locations = f.fixes
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return t0 }
	}
	f.srv = httptest.NewServer(New(Config{Version: "test", Heartbeat: 50 * time.Millisecond}, deps).Handler())

	t.Cleanup(func() {
		f.srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, arb.Close(ctx))
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (f *fixture) waitSealed(t *testing.T) model.SessionSnapshot {
	t.Helper()
	var snap model.SessionSnapshot
	require.Eventually(t, func() bool {
		snap = f.arb.CurrentSessionState()
		return snap.Sealed
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Deps{})
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, string(body))

	broken := newFixture(t, Deps{Health: func(context.Context) error { return errors.New("db locked") }})
	resp, body = broken.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "db locked", decode[errorBody](t, body).Detail)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Deps{})
	f.do(t, http.MethodGet, "/api/v1/sos/session", "")
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "guardian_http_request_duration_seconds")
}

func TestSignal_Validation(t *testing.T) {
	f := newFixture(t, Deps{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/signal", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeBadRequest, decode[errorBody](t, body).Error)

	resp, body = f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"telepathy"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeInvalidSource, decode[errorBody](t, body).Error)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"manual","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, model.StateIdle, f.arb.CurrentSessionState().State)
}

func TestSignalThenCancel(t *testing.T) {
	f := newFixture(t, Deps{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"shake"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	first := decode[arbiter.SignalResult](t, body)
	assert.Equal(t, arbiter.OutcomeCreated, first.Outcome)

	_, body = f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"VOICE"}`)
	second := decode[arbiter.SignalResult](t, body)
	assert.Equal(t, arbiter.OutcomeAnnotated, second.Outcome)
	assert.Equal(t, first.SessionID, second.SessionID)

	_, body = f.do(t, http.MethodGet, "/api/v1/sos/session", "")
	assert.Equal(t, model.StateArming, decode[model.SessionSnapshot](t, body).State)

	resp, body = f.do(t, http.MethodPost, "/api/v1/sos/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[model.SessionSnapshot](t, body)
	assert.Equal(t, model.StateCancelled, snap.State)
	assert.Equal(t, model.RUserCancelled, snap.Reason)

	resp, body = f.do(t, http.MethodGet, "/api/v1/sos/sessions/"+first.SessionID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StateCancelled, decode[model.SessionSnapshot](t, body).State)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/sos/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Zero(t, f.transport.CallCount())
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, Deps{})
	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StateIdle, decode[model.SessionSnapshot](t, body).State)
}

func TestDispatchHistoryAndResend(t *testing.T) {
	f := newFixture(t, Deps{})
	failing := testkit.Contacts(2)[1].Phone
	f.transport.FailFor(failing, errors.New("gateway hiccup"))

	_, body := f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"manual"}`)
	id := decode[arbiter.SignalResult](t, body).SessionID
	f.clock.Advance(countdown)

	snap := f.waitSealed(t)
	require.Equal(t, model.StateCompleted, snap.State)
	require.Equal(t, model.RPartialDelivery, snap.Reason)

	resp, body := f.do(t, http.MethodGet, "/api/v1/sos/history?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]model.LogEntry](t, body)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].Session.ID)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/sos/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.transport.FailFor(failing, nil)
	resp, body = f.do(t, http.MethodPost, "/api/v1/sos/sessions/"+id+"/resend", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	report := decode[model.ResendReport](t, body)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.DeliveredCount())

	resp, body = f.do(t, http.MethodPost, "/api/v1/sos/sessions/unknown/resend", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNotFound, decode[errorBody](t, body).Error)
}

func TestResend_NothingToResendIsConflict(t *testing.T) {
	f := newFixture(t, Deps{})
	_, body := f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"manual"}`)
	id := decode[arbiter.SignalResult](t, body).SessionID
	f.clock.Advance(countdown)
	require.Equal(t, model.StateCompleted, f.waitSealed(t).State)

	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/sessions/"+id+"/resend", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, codeNothingToSend, decode[errorBody](t, body).Error)
}

func TestSignal_AfterCloseIsUnavailable(t *testing.T) {
	f := newFixture(t, Deps{})
	require.NoError(t, f.arb.Close(context.Background()))

	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"manual"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, codeShuttingDown, decode[errorBody](t, body).Error)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Deps{ExportDir: dir})
	resp, body := f.do(t, http.MethodPost, "/api/v1/sos/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode[exportResponse](t, body)
	assert.True(t, strings.HasPrefix(out.Path, dir))
	_, err := os.Stat(out.Path)
	assert.NoError(t, err)

	noDir := newFixture(t, Deps{})
	resp, _ = noDir.do(t, http.MethodPost, "/api/v1/sos/export", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestLocation(t *testing.T) {
	f := newFixture(t, Deps{})
	resp, _ := f.do(t, http.MethodPost, "/api/v1/location", `{"latitude":52.5,"longitude":13.4,"accuracy":8}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, f.fixes.got, 1)
	assert.Equal(t, t0, f.fixes.got[0].FixedAt)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/location", `{"latitude":99,"longitude":13.4}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, f.fixes.got, 1)
}

func TestContacts(t *testing.T) {
	f := newFixture(t, Deps{})
	resp, body := f.do(t, http.MethodGet, "/api/v1/contacts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))

	resp, _ = f.do(t, http.MethodPut, "/api/v1/contacts", `[{"id":"a","name":"A","phone":"+1"},{"id":"a","phone":"+2"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/contacts", `[{"id":"a","name":"A","phone":"+1","relation":"sister"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.book.list, 1)
	assert.Equal(t, "sister", f.book.list[0].Relation)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, Deps{})
	resp, body := f.do(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNotFound, decode[errorBody](t, body).Error)
}

func TestRateLimit(t *testing.T) {
	base := newFixture(t, Deps{})
	limited := httptest.NewServer(New(Config{RateLimit: 2}, Deps{Emergency: base.arb}).Handler())
	t.Cleanup(limited.Close)
	f := &fixture{srv: limited}

	for range 2 {
		resp, _ := f.do(t, http.MethodGet, "/api/v1/sos/session", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodGet, "/api/v1/sos/session", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limit_exceeded", decode[errorBody](t, body).Error)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is outside the limited group")
}

func TestNotificationsStream(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/sos/notifications", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	_, _ = f.do(t, http.MethodPost, "/api/v1/sos/signal", `{"source":"manual"}`)
	_, _ = f.do(t, http.MethodPost, "/api/v1/sos/cancel", "")

	seen := map[string]int{}
	deadline := time.After(5 * time.Second)
	for seen[sseEventNotification] == 0 || seen[sseEventState] < 2 {
		lineCh := make(chan string, 1)
		go func() {
			l, _ := reader.ReadString('\n')
			lineCh <- l
		}()
		select {
		case l := <-lineCh:
			if ev, ok := strings.CutPrefix(strings.TrimSpace(l), "event: "); ok {
				seen[ev]++
			}
		case <-deadline:
			t.Fatalf("stream incomplete: %v", seen)
		}
	}
}

func TestCloseStreamsEndsNotificationStream(t *testing.T) {
	f := newFixture(t, Deps{})
	apiSrv := New(Config{}, Deps{Emergency: f.arb})
	srv := httptest.NewServer(apiSrv.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/sos/notifications")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	apiSrv.CloseStreams()
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream stayed open after CloseStreams")
	}
}
