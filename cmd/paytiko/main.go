package main

import (
	"context"
	"fmt"
	stdlog "log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/cashier-paytiko/app/controllers"
	"github.com/ManuelReschke/cashier-paytiko/app/repository"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/archive"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/cache"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/config"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/database"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/env"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/paytiko"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("invalid configuration: %v", err)
	}

	app, err := NewApplication(context.Background(), cfg)
	if err != nil {
		stdlog.Fatal(err)
	}
	err = app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort))
	stdlog.Fatal(err)
}

func NewApplication(ctx context.Context, cfg *config.Config) (*fiber.App, error) {
	log.SetLevel(logLevel(cfg.Paytiko.LogLevel))

	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rdb := cache.SetupCache(ctx, cfg.Cache)
	repos := repository.NewFactory(db, cache.NewOrderLocker(rdb)).GetRepositories()

	opts := []paytiko.Option{paytiko.WithJournal(repos.WebhookDelivery)}
	if cfg.Archive.Enabled {
		archiver, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		opts = append(opts, paytiko.WithArchiver(archiver))
	}

	client := paytiko.NewClient(cfg.Paytiko, nil)
	signer := paytiko.NewSigner(cfg.Paytiko.MerchantSecretKey)
	bus := paytiko.NewEventBus()

	coordinator := paytiko.NewCoordinator(client, repos.Transaction, bus, opts...)
	bus.Subscribe(paytiko.EventWebhookReceived, coordinator.ConvergenceListener())

	dispatcher := paytiko.NewDispatcher(cfg.Paytiko, signer, bus, opts...)
	processor := paytiko.NewProcessor(cfg.Paytiko, paytiko.NewHostedPageClient(client, signer), repos.Transaction)
	controller := controllers.NewPaytikoController(cfg.Paytiko, signer, dispatcher, coordinator, processor, repos.WebhookDelivery)

	app := fiber.New(fiber.Config{
		AppName:   "cashier-paytiko",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if cfg.MonitorPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MonitorUser: cfg.MonitorPassword,
			},
		}), monitor.New())
	}

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(
		controller,
		cfg.OperatorKeyHash,
		router.NewLimiterStorage(cfg.Cache),
		cfg.RateLimitPerMinute,
	))

	return app, nil
}

func logLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	}
	return log.LevelInfo
}
