package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealth mounts the health probe.
func RegisterHealth(app fiber.Router) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "assistant",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
}
