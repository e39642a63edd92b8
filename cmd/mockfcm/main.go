package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/fcm-courier/internal/config"
	"github.com/kursadbilgin/fcm-courier/internal/mockfcm"
	"github.com/kursadbilgin/fcm-courier/internal/observability"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadMock()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	server, err := mockfcm.New(cfg.APIKey, logger)
	if err != nil {
		logger.Fatal("mock provider initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			logger.Error("mock provider shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("mock provider started", zap.Int("port", cfg.Port))
	if err := server.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal("mock provider stopped with error", zap.Error(err))
	}

	logger.Info("mock provider stopped")
}
