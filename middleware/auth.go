// middleware/auth.go
package middleware

import (
	"context"
	"strings"

	"briefly-server/apierr"
	"briefly-server/logger"
	"briefly-server/models"

	"github.com/gofiber/fiber/v2"
)

const AccountLocalsKey = "account"

// Authenticator resolves a bearer token to its account, creating the
// account on first use.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

// EnsureUser requires `Authorization: Bearer <token>` and attaches the
// caller's account to the request.
func EnsureUser(auth Authenticator, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			return unauthorized(c, "Unauthorized")
		}

		account, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			if apierr.KindOf(err) == apierr.KindInternal {
				log.Error("[AUTH] Account lookup failed", "path", c.Path(), "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"success": false,
					"error":   apierr.Message(err),
				})
			}
			log.Debug("[AUTH] Rejected token", "path", c.Path(), "error", err)
			return unauthorized(c, "Unauthorized")
		}

		c.Locals(AccountLocalsKey, account)
		return c.Next()
	}
}

// Account returns the account set by EnsureUser, or nil.
func Account(c *fiber.Ctx) *models.Account {
	account, _ := c.Locals(AccountLocalsKey).(*models.Account)
	return account
}
