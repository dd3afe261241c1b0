// handlers/respond.go
package handlers

import (
	"strconv"

	"briefly-server/apierr"
	"briefly-server/logger"
	"briefly-server/middleware"
	"briefly-server/models"

	"github.com/gofiber/fiber/v2"
)

func ok(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"message": message,
	})
}

// fail renders err through the error envelope. Unexpected failures are
// logged with their cause; clients only see the public message.
func fail(c *fiber.Ctx, log *logger.Logger, err error) error {
	status := apierr.Status(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   apierr.Message(err),
	})
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.Validation("invalid %s", name)
	}
	return id, nil
}

func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apierr.Validation("invalid request body")
	}
	return nil
}

func currentAccount(c *fiber.Ctx) (*models.Account, error) {
	account := middleware.Account(c)
	if account == nil {
		return nil, apierr.Unauthorized("Unauthorized")
	}
	return account, nil
}
