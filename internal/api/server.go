// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the emergency session manager over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/guardian/internal/domain/emergency/arbiter"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
)

// Emergency is the session manager facade the handlers drive.
type Emergency interface {
	SignalDanger(ctx context.Context, src model.TriggerSource) (arbiter.SignalResult, error)
	CancelActiveSession(ctx context.Context) (model.SessionSnapshot, error)
	CurrentSessionState() model.SessionSnapshot
	Session(id string) (model.SessionSnapshot, error)
	ResendFailed(ctx context.Context, id string) (model.ResendReport, error)
	Notifications(ctx context.Context) (ports.Subscription, error)
	StateChanges(ctx context.Context) (ports.Subscription, error)
}

// ContactBook edits the configured contacts.
type ContactBook interface {
	List(ctx context.Context) ([]model.EmergencyContact, error)
	Replace(ctx context.Context, contacts []model.EmergencyContact) error
}

// LocationRecorder stores a device position fix.
type LocationRecorder interface {
	Record(ctx context.Context, c model.Coordinates) error
}

type Config struct {
	// RateLimit is requests per minute per client address on /api/v1.
	RateLimit int
	Version   string
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Deps are the collaborators behind the routes. Contacts, Locations and
// Health are optional.
type Deps struct {
	Emergency Emergency
	History   ports.EventReader
	Contacts  ContactBook
	Locations LocationRecorder
	Health    func(ctx context.Context) error
	ExportDir string
	Now       func() time.Time
}

type Server struct {
	cfg  Config
	deps Deps
	mux  *chi.Mux

	streams     context.Context
	stopStreams context.CancelFunc
}

func New(cfg Config, deps Deps) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{cfg: cfg, deps: deps}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.mux = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// CloseStreams ends every open notification stream. Register it with
// http.Server.RegisterOnShutdown so a graceful shutdown is not held open by
// long-lived clients.
func (s *Server) CloseStreams() { s.stopStreams() }

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing("guardian"))
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimit, time.Minute))

		r.Route("/sos", func(r chi.Router) {
			r.Post("/signal", s.handleSignal)
			r.Post("/cancel", s.handleCancel)
			r.Get("/session", s.handleCurrentSession)
			r.Get("/sessions/{id}", s.handleSession)
			r.Post("/sessions/{id}/resend", s.handleResend)
			r.Get("/history", s.handleHistory)
			r.Post("/export", s.handleExport)
			r.Get("/notifications", s.handleNotifications)
		})
		r.Post("/location", s.handleLocation)
		r.Get("/contacts", s.handleListContacts)
		r.Put("/contacts", s.handleReplaceContacts)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed on this route")
	})
	return r
}
