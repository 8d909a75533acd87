// middleware/player_context.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// PlayerContextMiddleware extracts the player identity forwarded by the UI
// layer. Identity provisioning itself lives outside this service; we only
// require that secured routes carry it.
func PlayerContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		playerID := c.Get("X-Player-ID")
		if playerID == "" {
			log.Printf("❌ [PLAYER_CTX] X-Player-ID missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Player-ID header",
			})
		}

		c.Locals("player_id", playerID)
		return c.Next()
	}
}
