package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// InternalTokenHeader carries the shared secret of internal callers.
const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken admits requests carrying the configured shared secret,
// either in X-Internal-Token or as a bearer token.
func RequireInternalToken(token string) fiber.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			log.Error("[Middleware] internal token not configured, refusing request")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Internal API disabled"})
		}
		got := extractTokenFromHeader(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing internal token"})
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid internal token"})
		}
		return c.Next()
	}
}

func extractTokenFromHeader(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get(InternalTokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
