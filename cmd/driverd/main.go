// Package main is the entry point for driverd.
// driverd supervises a single chromedriver process and exposes a small HTTP
// API that drives a headless browser through it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moby/sys/reexec"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/driverd/internal/api"
	"github.com/kandev/driverd/internal/common/config"
	"github.com/kandev/driverd/internal/common/logger"
	"github.com/kandev/driverd/internal/common/tracing"
	"github.com/kandev/driverd/internal/driver"
	"github.com/kandev/driverd/internal/webdriver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Must run first: when re-executed as the privilege-drop trampoline this
	// never returns.
	if reexec.Init() {
		return
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.WithFields(zap.String("namespace", cfg.Namespace))

	// run only returns once the supervisor is closed and traces are flushed.
	err = run(cfg, log)
	_ = log.Sync()
	if err != nil {
		log.Fatal("driverd stopped", zap.Error(err))
	}
	log.Fatal("driverd stopped: server exited")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Namespace:   cfg.Namespace,
		Endpoint:    cfg.Tracing.Endpoint,
	}); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	log.Info("starting driverd",
		zap.String("listen", cfg.Server.Addr()),
		zap.String("driver_binary", cfg.Driver.BinaryPath),
		zap.Int("driver_port", cfg.Driver.Port),
		zap.Bool("tracing", cfg.Tracing.Enabled))

	supervisor := driver.New(driver.Config{
		BinaryPath:   cfg.Driver.BinaryPath,
		Host:         cfg.Driver.Host,
		Port:         cfg.Driver.Port,
		ReadyTimeout: cfg.Driver.ReadyTimeoutDuration(),
		StopTimeout:  cfg.Driver.StopTimeoutDuration(),
	}, log)
	defer func() { _ = supervisor.Close() }()

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start driver: %w", err)
	}

	client := webdriver.NewClient(supervisor.Host(), supervisor.Port(), log)
	server := api.NewServer(supervisor, client, api.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		SessionTimeout: cfg.Server.SessionTimeoutDuration(),
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
