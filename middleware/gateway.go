// middleware/gateway.go
package middleware

import (
	"crypto/subtle"

	"briefly-server/logger"

	"github.com/gofiber/fiber/v2"
)

const AdminSecretHeader = "x-admin-secret"

// EnsureAdmin guards admin routes with the shared admin secret header.
func EnsureAdmin(secret string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(AdminSecretHeader)
		if got == "" {
			log.Warn("[ADMIN_AUTH] Missing admin secret", "path", c.Path(), "ip", c.IP())
			return unauthorized(c, "Missing admin secret header")
		}
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn("[ADMIN_AUTH] Invalid admin secret", "path", c.Path(), "ip", c.IP())
			return unauthorized(c, "Unauthorized: Invalid admin secret")
		}
		return c.Next()
	}
}
