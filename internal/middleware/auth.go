package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/membergate/backend/internal/auth"
	"github.com/membergate/backend/internal/config"
	"go.uber.org/zap"
)

const CtxService = "service"

// InternalAuthMiddleware guards the /internal/* endpoints the bot calls.
func InternalAuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseServiceJWT(cfg.ServiceJWTSecret, tokenStr)
		if err != nil {
			log.Debug("service jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxService, claims.Service)
		return c.Next()
	}
}

func GetService(c *fiber.Ctx) string {
	s, _ := c.Locals(CtxService).(string)
	return s
}
