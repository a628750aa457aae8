package adminapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// requireAPIKey gates POST /admin/v1/tokens: the bootstrap credential that
// lets an operator mint a dashboard JWT in the first place.
func requireAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if bearer(c) != apiKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid api key"})
		}
		return c.Next()
	}
}

// requireOperatorToken gates every other /admin/v1 route behind a JWT minted
// by requireAPIKey's endpoint. Grounded on AuthMiddleware, adapted from
// net/http's ResponseWriter/Request to fiber's Ctx.
func requireOperatorToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := ValidateToken(bearer(c), secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("claims", claims)
		return c.Next()
	}
}

func bearer(c *fiber.Ctx) string {
	const schema = "Bearer "
	h := c.Get("Authorization")
	if !strings.HasPrefix(h, schema) {
		return ""
	}
	return strings.TrimPrefix(h, schema)
}
