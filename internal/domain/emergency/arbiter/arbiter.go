// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package arbiter owns the emergency session state machine. Every signal,
// cancellation, countdown expiry and dispatch result goes through one lock
// around lifecycle.Dispatch, so at most one session is ever arming or active.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/guardian/internal/domain/emergency/lifecycle"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/metrics"
)

var (
	ErrInvalidSource       = errors.New("invalid trigger source")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNothingToResend     = errors.New("nothing to resend")
	ErrClosed              = errors.New("arbiter closed")
	ErrMissingCollaborator = errors.New("missing collaborator")
)

const (
	DefaultCountdownWindow = 3 * time.Second
	DefaultRetainSessions  = 32

	eventQueueSize      = 64
	statePublishTimeout = time.Second
)

// Dispatcher is the dispatch coordinator as seen by the arbiter.
type Dispatcher interface {
	Dispatch(ctx context.Context, snap model.SessionSnapshot) model.DispatchOutcome
	Resend(ctx context.Context, snap model.SessionSnapshot) model.ResendReport
}

// Recorder is the session recorder as seen by the arbiter.
type Recorder interface {
	Record(ctx context.Context, snap model.SessionSnapshot) model.Notification
	RecordResend(ctx context.Context, snap model.SessionSnapshot, report model.ResendReport) model.Notification
}

type Config struct {
	CountdownWindow time.Duration
	// RetainSessions bounds how many sealed sessions stay addressable by id.
	RetainSessions int
}

type Deps struct {
	Clock      ports.Clock
	Dispatcher Dispatcher
	Recorder   Recorder
	Bus        ports.Bus
}

// SignalOutcome says what a danger signal did.
type SignalOutcome string

const (
	OutcomeCreated   SignalOutcome = "created"
	OutcomeAnnotated SignalOutcome = "annotated"
	OutcomeIgnored   SignalOutcome = "ignored"
)

type SignalResult struct {
	SessionID string        `json:"sessionId"`
	Outcome   SignalOutcome `json:"outcome"`
}

// Arbiter is the emergency session manager facade.
type Arbiter struct {
	mu        sync.Mutex
	countdown time.Duration
	retain    int
	clock     ports.Clock
	dispatch  Dispatcher
	recorder  Recorder
	bus       ports.Bus

	// current is the session in ARMING or ACTIVE, if any.
	current *model.EmergencySession
	timer   ports.Timer
	// latest is the most recently created session, whatever its state.
	latest   *model.EmergencySession
	sessions map[string]*model.EmergencySession
	order    []string

	work      workRegistry
	resends   singleflight.Group
	baseCtx   context.Context
	cancelAll context.CancelFunc

	events     chan model.StateChange
	stopEvents chan struct{}
	eventsDone chan struct{}
	closeOnce  sync.Once

	logger zerolog.Logger
}

func New(cfg Config, deps Deps) (*Arbiter, error) {
	if deps.Dispatcher == nil || deps.Recorder == nil {
		return nil, fmt.Errorf("%w: dispatcher and recorder are required", ErrMissingCollaborator)
	}
	if cfg.CountdownWindow <= 0 {
		cfg.CountdownWindow = DefaultCountdownWindow
	}
	if cfg.RetainSessions <= 0 {
		cfg.RetainSessions = DefaultRetainSessions
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	a := &Arbiter{
		countdown:  cfg.CountdownWindow,
		retain:     cfg.RetainSessions,
		clock:      deps.Clock,
		dispatch:   deps.Dispatcher,
		recorder:   deps.Recorder,
		bus:        deps.Bus,
		sessions:   make(map[string]*model.EmergencySession),
		baseCtx:    baseCtx,
		cancelAll:  cancel,
		events:     make(chan model.StateChange, eventQueueSize),
		stopEvents: make(chan struct{}),
		eventsDone: make(chan struct{}),
		logger:     log.WithComponent("arbiter"),
	}
	go a.runEvents()
	return a, nil
}

// SignalDanger feeds one danger signal into the arbiter. While a session is
// arming or active, a signal from a new source is recorded as a secondary
// trigger and a repeat source is ignored; neither resets the countdown.
func (a *Arbiter) SignalDanger(ctx context.Context, src model.TriggerSource) (SignalResult, error) {
	if !src.Valid() {
		metrics.RecordSignal("invalid", "rejected")
		return SignalResult{}, fmt.Errorf("%w: %q", ErrInvalidSource, src)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if s := a.current; s != nil {
		logger := a.sessionLogger(s).With().Str(log.FieldTriggerSource, string(src)).Logger()
		if s.TriggerSource == src || s.HasSecondary(src) {
			metrics.RecordSignal(string(src), string(OutcomeIgnored))
			logger.Debug().Str(log.FieldEvent, "signal.ignored").Msg("duplicate danger signal absorbed")
			return SignalResult{SessionID: s.ID, Outcome: OutcomeIgnored}, nil
		}
		s.SecondaryTriggers = append(s.SecondaryTriggers, model.SecondaryTrigger{Source: src, At: now})
		metrics.RecordSignal(string(src), string(OutcomeAnnotated))
		logger.Info().Str(log.FieldEvent, "signal.annotated").Msg("secondary trigger recorded")
		return SignalResult{SessionID: s.ID, Outcome: OutcomeAnnotated}, nil
	}

	// The armed countdown owns one registry slot until it fires or is cancelled.
	if !a.work.admit() {
		metrics.RecordSignal(string(src), "rejected")
		return SignalResult{}, ErrClosed
	}

	s := lifecycle.NewSession(model.NewSessionID(), src, now, a.countdown)
	a.current = s
	a.latest = s
	a.retainSession(s)

	id := s.ID
	a.timer = a.clock.AfterFunc(a.countdown, func() { a.onCountdown(id) })

	metrics.RecordSignal(string(src), string(OutcomeCreated))
	a.noteTransition(s, model.StateIdle, now)
	return SignalResult{SessionID: id, Outcome: OutcomeCreated}, nil
}

// CancelActiveSession cancels the arming or active session. It is a no-op when
// nothing is in progress. The returned snapshot is the session after the call.
func (a *Arbiter) CancelActiveSession(ctx context.Context) (model.SessionSnapshot, error) {
	a.mu.Lock()
	s := a.current
	if s == nil {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, nil
	}

	from := s.State
	if from == model.StateArming && a.timer != nil {
		// A false Stop means the callback already started; it will see the
		// cancelled state and release the countdown slot itself.
		if a.timer.Stop() {
			a.work.done()
		}
		a.timer = nil
	}

	now := a.clock.Now()
	if _, err := lifecycle.Dispatch(s, lifecycle.Event{Kind: lifecycle.EvCancelRequested}, now); err != nil {
		snap := s.Snapshot()
		a.mu.Unlock()
		return snap, err
	}
	a.current = nil
	a.noteTransition(s, from, now)

	snap := s.Snapshot()
	sealed := s.Sealed
	a.mu.Unlock()

	if sealed {
		a.closeSession(ctx, snap)
	}
	return snap, nil
}

// CurrentSessionState returns the in-progress session, else the most recent
// one, else an idle snapshot.
func (a *Arbiter) CurrentSessionState() model.SessionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Session returns a retained session by id.
func (a *Arbiter) Session(id string) (model.SessionSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return model.SessionSnapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Snapshot(), nil
}

// Notifications subscribes to the recorder's notification stream.
func (a *Arbiter) Notifications(ctx context.Context) (ports.Subscription, error) {
	if a.bus == nil {
		return nil, fmt.Errorf("%w: no notification bus", ErrMissingCollaborator)
	}
	return a.bus.Subscribe(ctx, ports.TopicNotifications)
}

// StateChanges subscribes to session state transitions.
func (a *Arbiter) StateChanges(ctx context.Context) (ports.Subscription, error) {
	if a.bus == nil {
		return nil, fmt.Errorf("%w: no notification bus", ErrMissingCollaborator)
	}
	return a.bus.Subscribe(ctx, ports.TopicStateChanges)
}

// ResendFailed re-sends the stored alert to the contacts a sealed session
// failed to reach. Concurrent calls for one session share a single pass.
func (a *Arbiter) ResendFailed(ctx context.Context, id string) (model.ResendReport, error) {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if !ok {
		a.mu.Unlock()
		return model.ResendReport{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	snap := s.Snapshot()
	a.mu.Unlock()

	if err := resendable(snap); err != nil {
		return model.ResendReport{}, err
	}
	if !a.work.admit() {
		return model.ResendReport{}, ErrClosed
	}
	defer a.work.done()

	v, err, shared := a.resends.Do(id, func() (any, error) {
		workCtx := log.ContextWithSessionID(a.baseCtx, id)
		report := a.dispatch.Resend(workCtx, snap)
		a.recorder.RecordResend(workCtx, snap, report)
		a.sessionLoggerSnap(snap).Info().
			Str(log.FieldEvent, "session.resend").
			Int("contacts", len(report.Results)).
			Int("delivered", report.DeliveredCount()).
			Msg("resend to failed contacts finished")
		return report, nil
	})
	if err != nil {
		return model.ResendReport{}, err
	}
	if shared {
		a.sessionLoggerSnap(snap).Debug().Msg("resend shared with concurrent caller")
	}
	return v.(model.ResendReport), nil
}

func resendable(snap model.SessionSnapshot) error {
	if !snap.Sealed {
		return fmt.Errorf("%w: session %s is still %s", ErrNothingToResend, snap.ID, snap.State)
	}
	switch {
	case snap.State == model.StateCompleted:
	case snap.State == model.StateFailed && snap.Reason == model.RNoDeliveries:
	default:
		return fmt.Errorf("%w: session %s ended %s (%s)", ErrNothingToResend, snap.ID, snap.State, snap.Reason)
	}
	if len(snap.FailedDeliveries()) == 0 {
		return fmt.Errorf("%w: every contact of session %s was reached", ErrNothingToResend, snap.ID)
	}
	return nil
}

// Close stops accepting new sessions and waits for armed countdowns, dispatches
// and resends to finish. An armed countdown still fires and dispatches.
func (a *Arbiter) Close(ctx context.Context) error {
	err := a.work.CloseAndWait(ctx)
	if err != nil {
		a.cancelAll()
	}
	a.closeOnce.Do(func() { close(a.stopEvents) })
	select {
	case <-a.eventsDone:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("state event drain: %w", ctx.Err())
		}
	}
	if err == nil {
		a.cancelAll()
	}
	return err
}

func (a *Arbiter) onCountdown(id string) {
	a.mu.Lock()
	s := a.current
	if s == nil || s.ID != id || s.State != model.StateArming {
		a.mu.Unlock()
		a.work.done()
		return
	}
	a.timer = nil

	now := a.clock.Now()
	if _, err := lifecycle.Dispatch(s, lifecycle.Event{Kind: lifecycle.EvCountdownElapsed}, now); err != nil {
		a.sessionLogger(s).Error().Err(err).Msg("countdown transition rejected")
		a.mu.Unlock()
		a.work.done()
		return
	}
	a.noteTransition(s, model.StateArming, now)
	snap := s.Snapshot()

	a.work.handoff()
	a.mu.Unlock()
	a.work.done()

	go func() {
		defer a.work.done()
		ctx := log.ContextWithSessionID(a.baseCtx, snap.ID)
		out := a.dispatch.Dispatch(ctx, snap)
		a.settle(ctx, snap.ID, out)
	}()
}

func (a *Arbiter) settle(ctx context.Context, id string, out model.DispatchOutcome) {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if !ok {
		a.mu.Unlock()
		a.logger.Error().Str(log.FieldSessionID, id).Msg("dispatch settled for unknown session")
		return
	}

	from := s.State
	now := a.clock.Now()
	if _, err := lifecycle.Dispatch(s, lifecycle.Event{Kind: lifecycle.EvDispatchSettled, Outcome: &out}, now); err != nil {
		a.sessionLogger(s).Error().Err(err).Msg("dispatch result rejected")
		a.mu.Unlock()
		return
	}
	if a.current == s {
		a.current = nil
	}
	if from != s.State {
		a.noteTransition(s, from, now)
	}
	snap := s.Snapshot()
	a.mu.Unlock()

	a.closeSession(ctx, snap)
}

// closeSession hands a sealed session to the recorder exactly once.
func (a *Arbiter) closeSession(ctx context.Context, snap model.SessionSnapshot) {
	metrics.RecordSessionClosed(string(snap.State), string(snap.Reason))
	a.sessionLoggerSnap(snap).Info().
		Str(log.FieldEvent, "session.sealed").
		Str(log.FieldReason, string(snap.Reason)).
		Int("delivered", snap.DeliveredCount()).
		Int("contacts", len(snap.DispatchResults)).
		Msg("emergency session sealed")
	a.recorder.Record(ctx, snap)
}

// noteTransition logs, counts and queues a state change. Caller holds a.mu.
func (a *Arbiter) noteTransition(s *model.EmergencySession, from model.SessionState, at time.Time) {
	metrics.RecordTransition(string(from), string(s.State))
	a.sessionLogger(s).Info().
		Str(log.FieldEvent, "session.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(s.State)).
		Str(log.FieldReason, string(s.Reason)).
		Msg("session state changed")

	change := model.StateChange{
		SessionID: s.ID,
		From:      from,
		To:        s.State,
		Reason:    s.Reason,
		Source:    s.TriggerSource,
		At:        at,
	}
	select {
	case a.events <- change:
	default:
		metrics.IncBusDropReason(ports.TopicStateChanges, "queue_full")
	}
}

func (a *Arbiter) runEvents() {
	defer close(a.eventsDone)
	for {
		select {
		case ev := <-a.events:
			a.publishChange(ev)
		case <-a.stopEvents:
			for {
				select {
				case ev := <-a.events:
					a.publishChange(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Arbiter) publishChange(ev model.StateChange) {
	if a.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statePublishTimeout)
	defer cancel()
	if err := a.bus.Publish(ctx, ports.TopicStateChanges, ev); err != nil {
		a.logger.Debug().Err(err).Str(log.FieldSessionID, ev.SessionID).Msg("state change publish failed")
	}
}

// retainSession keeps s addressable by id, evicting the oldest sealed sessions
// beyond the retention bound. Caller holds a.mu.
func (a *Arbiter) retainSession(s *model.EmergencySession) {
	a.sessions[s.ID] = s
	a.order = append(a.order, s.ID)
	for len(a.order) > a.retain {
		evicted := false
		for i, id := range a.order {
			old := a.sessions[id]
			if old != nil && old.Sealed && old != a.latest {
				delete(a.sessions, id)
				a.order = append(a.order[:i], a.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

func (a *Arbiter) snapshotLocked() model.SessionSnapshot {
	switch {
	case a.current != nil:
		return a.current.Snapshot()
	case a.latest != nil:
		return a.latest.Snapshot()
	default:
		return model.IdleSnapshot()
	}
}

func (a *Arbiter) sessionLogger(s *model.EmergencySession) *zerolog.Logger {
	l := a.logger.With().
		Str(log.FieldSessionID, s.ID).
		Str("primary_source", string(s.TriggerSource)).
		Logger()
	return &l
}

func (a *Arbiter) sessionLoggerSnap(snap model.SessionSnapshot) *zerolog.Logger {
	l := a.logger.With().
		Str(log.FieldSessionID, snap.ID).
		Str(log.FieldNewState, string(snap.State)).
		Logger()
	return &l
}
