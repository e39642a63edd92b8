package transport

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// RegisterHealthRoutes mounts /livez and /readyz. Liveness is
// unconditional; readiness runs every check and reports per-dependency
// status.
func RegisterHealthRoutes(router fiber.Router, checks map[string]Check) {
	router.Get("/livez", LivezHandler())
	router.Get("/readyz", ReadyzHandler(checks))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks map[string]Check) fiber.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		status := "ready"
		statusCode := fiber.StatusOK
		results := fiber.Map{}

		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = "down"
				status = "not_ready"
				statusCode = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
