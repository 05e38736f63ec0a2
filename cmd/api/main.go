package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/lead-contact-engine/internal/api"
	"github.com/acme/lead-contact-engine/internal/api/handlers"
	"github.com/acme/lead-contact-engine/internal/app"
	"github.com/acme/lead-contact-engine/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())
	cfg := container.Config

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App, "api")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		log.Fatalf("failed to ensure kafka topics: %v", err)
	}

	repos := container.Repositories()
	services := container.Services()
	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Rules:        services.Rules,
		Attempts:     repos.Attempts,
		PassStats:    repos.PassStats,
		Passes:       services.Pass,
		HealthChecks: container.HealthChecks(),
		Logger:       container.Logger,
	})
	server := api.NewServer(cfg.HTTP, handlerSet)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		container.Logger.Info("http server listening", zap.Int("port", cfg.HTTP.Port))
		return server.Start(gctx)
	})
	if cfg.Rules.Watch {
		g.Go(func() error { return container.WatchRules(gctx) })
	}
	if cfg.Scheduler.Embedded {
		g.Go(func() error { return container.RunScheduler(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
