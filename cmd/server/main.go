package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/curated-feeds/internal/app"
	"github.com/blackmichael/curated-feeds/internal/config"
	"github.com/blackmichael/curated-feeds/internal/firehose"
	"github.com/blackmichael/curated-feeds/internal/httpserver"
	"github.com/blackmichael/curated-feeds/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "curated-feeds",
		Stdout:      cfg.OTelStdout,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("error shutting down tracing", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to database")

	a.Start(ctx)

	// Start the firehose subscriber in the background
	if cfg.FirehoseURL != "" {
		subscriber := firehose.NewSubscriber(cfg.FirehoseURL, a.Store, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("firehose subscriber exited with error", "error", err)
			}
		}()
	} else {
		logger.Info("FIREHOSE_URL not set, reply ingestion disabled")
	}

	// Start the HTTP server
	server := httpserver.NewServer(cfg, a.Feeds, a.Store, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "hostname", cfg.Hostname)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	a.Tasks.Flush()
	logger.Info("background tasks drained", "failed", a.Tasks.Failed(), "dropped", a.Tasks.Dropped())
	cancel()

	return nil
}
