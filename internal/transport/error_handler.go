// Package transport holds the fiber plumbing shared by the courier's
// HTTP surfaces: app construction, error rendering, health routes.
package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if requestID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); requestID != "" {
			fields = append(fields, zap.String("correlationId", requestID))
		}
		logger.Error("request error", fields...)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// NewApp builds a fiber app with the courier's shared settings.
func NewApp(logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	return fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})
}
