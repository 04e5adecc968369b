package middleware

import (
	"strings"

	"flexile-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORS allows origins ending with allowedSuffix, plus localhost preflights outside
// production. An empty suffix disables the check.
func CORS(allowedSuffix string, production bool) fiber.Handler {
	suffix := strings.ToLower(allowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" || suffix == "" {
			return c.Next()
		}
		local := strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
		if strings.HasSuffix(strings.ToLower(origin), suffix) || (local && !production) {
			setCORSHeaders(c, origin)
			if c.Method() == fiber.MethodOptions {
				return c.SendStatus(fiber.StatusNoContent)
			}
			return c.Next()
		}
		return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
	}
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set("Access-Control-Allow-Origin", origin)
	c.Set("Access-Control-Allow-Credentials", "true")
	c.Set("Access-Control-Allow-Headers", "Content-Type, X-Trace-Id")
	c.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
}
