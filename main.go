package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"redraft/internal/app"
	"redraft/internal/config"
	"redraft/internal/logger"
)

func main() {
	// Structured logger with correlation id propagation
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	deps, err := app.Bootstrap(cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	a, err := app.New(cfg, deps.DB, deps.NSQProducer)
	if err != nil {
		slog.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EnableDispatcher {
		consumers, err := app.StartConsumers(cfg, a)
		if err != nil {
			slog.Error("failed to start consumers", "error", err)
			os.Exit(1)
		}
		defer func() {
			for _, c := range consumers {
				c.Stop()
			}
		}()
	}

	if cfg.EnableAPI {
		if err := a.Run(ctx); err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Dispatcher-only mode: block until signalled.
	<-ctx.Done()
	slog.Info("shutting down")
}
