package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/membergate/backend/internal/config"
	"github.com/membergate/backend/internal/db"
	"github.com/membergate/backend/internal/events"
	apphttp "github.com/membergate/backend/internal/http"
	"github.com/membergate/backend/internal/http/handlers"
	"github.com/membergate/backend/internal/policy"
	"github.com/membergate/backend/internal/repositories"
	"github.com/membergate/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	memberRepo := repositories.NewMemberRepo(pool)
	tokenRepo := repositories.NewTokenRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)

	// Services
	pol := policy.Policy{
		InitialGrace:       cfg.InitialGrace,
		PaymentFailedGrace: cfg.PaymentFailedGrace,
	}
	billing := services.NewStripeBilling(cfg.StripeAPIKey, cfg.StripeTimeout, log)
	mailer := services.NewMailerClient(cfg.MailerInternalURL, log)
	linkService := services.NewLinkService(memberRepo, tokenRepo, billing, mailer, auditRepo, publisher, pol, cfg, log)
	reconcileService := services.NewReconcileService(memberRepo, auditRepo, publisher, pol, log)

	// Handlers
	linkHandler := handlers.NewLinkHandler(linkService, log)
	webhookHandler := handlers.NewWebhookHandler(cfg.StripeWebhookSecret, reconcileService, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, linkHandler, webhookHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
