package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/membergate/backend/internal/config"
	"github.com/membergate/backend/internal/http/handlers"
	"github.com/membergate/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	linkHandler *handlers.LinkHandler,
	webhookHandler *handlers.WebhookHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Stripe webhook: signature-guarded, never rate limited. Dropping a
	// delivery costs a retry cycle on the provider side.
	app.Post("/billing/webhook", webhookHandler.Handle)

	// Internal endpoints for the bot
	internal := app.Group("/internal", middleware.InternalAuthMiddleware(cfg, log))
	internal.Post("/link/start", linkHandler.StartLink)

	// Public link pages, rate limited per IP
	public := app.Group("", middleware.RateLimitMiddleware(rdb, 30, time.Minute))
	public.Get("/link/:secret", linkHandler.Present)
	public.Post("/link/:secret", linkHandler.Verify)
	public.Get("/activate/:secret", linkHandler.Finish)
}
