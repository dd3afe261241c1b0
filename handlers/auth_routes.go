// handlers/auth_routes.go
package handlers

import (
	"briefly-server/logger"
	"briefly-server/middleware"
	"briefly-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(api fiber.Router, auth *services.AuthService, log *logger.Logger) {
	group := api.Group("/auth")

	group.Get("/nonce", middleware.RateLimit(1, 5), func(c *fiber.Ctx) error {
		nonce, err := auth.IssueNonce(c.UserContext(), c.Query("address"))
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"nonce": nonce}, "Successfully fetched data")
	})

	group.Post("/login", func(c *fiber.Ctx) error {
		var body struct {
			Address   string `json:"address"`
			Signature string `json:"signature"`
		}
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		token, account, err := auth.Login(c.UserContext(), body.Address, body.Signature)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"token": token, "account": account}, "Login successful")
	})
}
