package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/api"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/config"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/face"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting detection relay",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.RelayPort),
		slog.String("provider", cfg.FaceProvider),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, err := face.NewDetector(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create face detector: %w", err)
	}

	if cfg.RelayToken == "" && cfg.IsProduction() {
		logger.Warn("RELAY_TOKEN is empty, detection sessions are open to anyone")
	}

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Detector:  detector,
		WSConfig:  ws.DefaultConfig(),
		Token:     cfg.RelayToken,
		RateLimit: middleware.DefaultRateLimiterConfig(),
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.RelayPort)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")

	done := make(chan error, 1)
	go func() {
		done <- router.Shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")

	return nil
}
