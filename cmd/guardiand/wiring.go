// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/guardian/internal/api"
	"github.com/ManuGH/guardian/internal/bus"
	"github.com/ManuGH/guardian/internal/config"
	"github.com/ManuGH/guardian/internal/contacts"
	"github.com/ManuGH/guardian/internal/domain/emergency/arbiter"
	"github.com/ManuGH/guardian/internal/domain/emergency/dispatch"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
	"github.com/ManuGH/guardian/internal/domain/emergency/recorder"
	"github.com/ManuGH/guardian/internal/domain/emergency/store"
	"github.com/ManuGH/guardian/internal/location"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/transport"
)

const stateDBName = "state.sqlite"

// app holds everything the daemon wires together.
type app struct {
	eventLog     store.EventStore
	history      ports.EventReader
	state        *store.SqliteStore
	contactsFile *contacts.FileStore
	contactBook  api.ContactBook
	locations    api.LocationRecorder
	arbiter      *arbiter.Arbiter
	health       func(context.Context) error
	drainBudget  time.Duration
	closers      []func() error
}

func buildApp(cfg config.AppConfig) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.eventLog, err = openEventLog(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.eventLog.Close)
	a.history = a.eventLog

	a.state, err = openStateStore(cfg, a.eventLog)
	if err != nil {
		return nil, err
	}
	if a.state != a.eventLog {
		a.closers = append(a.closers, a.state.Close)
	}
	a.locations = a.state.Locations()
	a.health = a.state.Check

	var contactStore ports.ContactStore
	if cfg.Contacts.File != "" {
		a.contactsFile, err = contacts.OpenFileStore(cfg.Contacts.File)
		if err != nil {
			return nil, fmt.Errorf("contacts file: %w", err)
		}
		contactStore = a.contactsFile
		a.contactBook = a.contactsFile
	} else {
		sqlContacts := a.state.Contacts()
		contactStore = sqlContacts
		a.contactBook = sqlContacts
	}

	alerts, err := buildTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	memBus := bus.NewMemoryBus()
	coord := dispatch.New(dispatch.Config{
		LocationTimeout: cfg.LocationTimeout,
		SendTimeout:     cfg.SendTimeout,
		AlertText:       cfg.AlertText,
	}, contactStore, buildLocation(cfg.Location, a.state.Locations()), alerts)
	rec := recorder.New(a.eventLog, memBus, recorder.WithBackendName(cfg.EventLog.Backend))

	a.arbiter, err = arbiter.New(arbiter.Config{
		CountdownWindow: cfg.CountdownWindow,
		RetainSessions:  cfg.RetainSessions,
	}, arbiter.Deps{
		Clock:      ports.SystemClock{},
		Dispatcher: coord,
		Recorder:   rec,
		Bus:        memBus,
	})
	if err != nil {
		return nil, err
	}
	a.drainBudget = cfg.CountdownWindow + cfg.LocationTimeout + cfg.SendTimeout
	return a, nil
}

func (a *app) close() {
	logger := log.WithComponent("daemon")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// openEventLog opens the configured backend and, when a Redis address is set,
// mirrors every entry to a Redis stream. An unreachable mirror is logged and
// skipped rather than blocking startup.
func openEventLog(cfg config.AppConfig) (store.EventStore, error) {
	primary, err := store.OpenEventLog(cfg.EventLog.Backend, cfg.EventLog.Path, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	if cfg.EventLog.RedisAddr == "" {
		return primary, nil
	}
	mirror, err := store.NewRedisLog(store.RedisConfig{
		Addr:     cfg.EventLog.RedisAddr,
		Password: cfg.EventLog.RedisPassword,
		DB:       cfg.EventLog.RedisDB,
		Stream:   cfg.EventLog.RedisStream,
	})
	if err != nil {
		logger := log.WithComponent("daemon")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "eventlog.mirror_unavailable").
			Msg("redis mirror unavailable, continuing without it")
		return primary, nil
	}
	return store.NewMultiLog(primary, store.Mirror{Name: "redis", Log: mirror}), nil
}

// openStateStore returns the sqlite store holding contacts and location
// history. It is the event log itself when that is sqlite.
func openStateStore(cfg config.AppConfig, eventLog store.EventStore) (*store.SqliteStore, error) {
	if s, ok := eventLog.(*store.SqliteStore); ok {
		return s, nil
	}
	s, err := store.NewSqliteStore(filepath.Join(cfg.DataDir, stateDBName))
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return s, nil
}

func buildTransport(cfg config.TransportConfig) (ports.AlertTransport, error) {
	if cfg.Mode != "gateway" {
		return transport.NewLogTransport(), nil
	}
	g, err := transport.NewGateway(transport.GatewayOptions{
		BaseURL:          cfg.GatewayURL,
		Token:            cfg.Token,
		RatePerSecond:    cfg.RatePerSecond,
		Burst:            cfg.Burst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return g, nil
}

// buildLocation prefers a fresh recorded fix and falls back to the static
// position when one is configured.
func buildLocation(cfg config.LocationConfig, history location.LatestFix) location.Chain {
	chain := location.Chain{location.NewHistoryProvider(history, cfg.MaxAge)}
	if cfg.HasStatic() {
		chain = append(chain, location.Static{Coords: model.Coordinates{
			Latitude:  *cfg.Latitude,
			Longitude: *cfg.Longitude,
		}})
	}
	return chain
}
