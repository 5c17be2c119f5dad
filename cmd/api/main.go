package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"resume-pipeline/internal/bootstrap"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/server"
	"resume-pipeline/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()

	logger, err := telemetry.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	telemetry.Init(logger)
	logger.Info("api.config", cfg.Fields()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("api.bootstrap_failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    server.Addr(cfg.Port),
		Handler: app.Router,
	}
	go func() {
		logger.Info("api.listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api.serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("api.shutting_down", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api.http_shutdown", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("api.drain", zap.Error(err))
	}
}
