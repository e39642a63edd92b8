package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/fcm-courier/fcm"
	"github.com/kursadbilgin/fcm-courier/internal/config"
	"github.com/kursadbilgin/fcm-courier/internal/observability"
	"github.com/kursadbilgin/fcm-courier/internal/queue"
	"github.com/kursadbilgin/fcm-courier/internal/registry"
	"github.com/kursadbilgin/fcm-courier/internal/relay"
	"github.com/kursadbilgin/fcm-courier/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	client, err := fcm.NewWithOptions(cfg.APIKey, fcm.Options{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout(),
		Debug:    cfg.Debug,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("fcm client initialization failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	backend, err := registry.ParseBackendFromString(cfg.RegistryBackend)
	if err != nil {
		logger.Fatal("invalid registry backend", zap.Error(err))
	}
	store, err := registry.Open(backend, cfg.RedisURL, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("registry initialization failed", zap.Error(err))
	}
	defer store.Close()

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.RelayConcurrency, logger)
	service, err := relay.NewService(consumer, client, store, cfg.RelayConcurrency, logger)
	if err != nil {
		logger.Fatal("relay initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	service.SetMetrics(metrics)

	app := transport.NewApp(logger)
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	transport.RegisterHealthRoutes(app, map[string]transport.Check{
		"rabbitmq": func(context.Context) error { return rabbit.Ping() },
		"registry": store.Ping,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay http server started",
			zap.Int("port", cfg.RelayPort),
			zap.String("registryBackend", backend.String()),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.RelayPort))
	})
	g.Go(func() error {
		return service.Start(groupCtx)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("relay stopped with error", zap.Error(err))
	}

	logger.Info("relay stopped")
}
