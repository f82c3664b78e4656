// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/guardian/internal/api"
	"github.com/ManuGH/guardian/internal/config"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export" {
		os.Exit(runExportCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "guardian", Version: version})
	logger := log.WithComponent("daemon")

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "config.load_failed").Str(log.FieldPath, *configPath).Msg("failed to load configuration")
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "guardian", Version: cfg.Version})
	logger = log.WithComponent("daemon")
	logger.Info().Str(log.FieldEvent, "config.loaded").Str("config", cfg.String()).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("guardian stopped with error")
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("guardian stopped")
}

// run wires the daemon and blocks until ctx is cancelled and shutdown is done.
func run(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "guardian",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	apiSrv := api.New(api.Config{RateLimit: cfg.API.RateLimit, Version: cfg.Version}, api.Deps{
		Emergency: a.arbiter,
		History:   a.history,
		Contacts:  a.contactBook,
		Locations: a.locations,
		Health:    a.health,
		ExportDir: cfg.DataDir,
	})
	httpSrv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           apiSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv.RegisterOnShutdown(apiSrv.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str(log.FieldEvent, "api.listening").Str("addr", cfg.API.Listen).Msg("control API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if a.contactsFile != nil {
		g.Go(func() error { return a.contactsFile.Watch(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpSrv, a, cfg.API.ShutdownTimeout)
	})
	return g.Wait()
}

// shutdown drains the API first so no new signals arrive, then waits for the
// arbiter to finish armed countdowns and in-flight dispatches.
func shutdown(httpSrv *http.Server, a *app, timeout time.Duration) error {
	logger := log.WithComponent("daemon")
	logger.Info().Str(log.FieldEvent, "daemon.shutdown").Msg("shutting down")

	apiCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var errs []error
	if err := httpSrv.Shutdown(apiCtx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}

	// The arbiter gets its own budget: a countdown armed just before the
	// signal still has to dispatch.
	arbCtx, cancelArb := context.WithTimeout(context.Background(), timeout+a.drainBudget)
	defer cancelArb()
	if err := a.arbiter.Close(arbCtx); err != nil {
		errs = append(errs, fmt.Errorf("arbiter close: %w", err))
	}
	return errors.Join(errs...)
}
