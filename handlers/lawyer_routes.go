// handlers/lawyer_routes.go
package handlers

import (
	"briefly-server/logger"
	"briefly-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLawyerRoutes(api fiber.Router, lawyers *services.LawyerService, ensureUser, ensureAdmin fiber.Handler, log *logger.Logger) {
	group := api.Group("/lawyers")

	group.Get("/", func(c *fiber.Ctx) error {
		list, err := lawyers.ListVerified(c.UserContext())
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, list, "Lawyers fetched")
	})

	group.Post("/request", ensureUser, func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		var body services.ApplicationInput
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		app, err := lawyers.SubmitApplication(c.UserContext(), account.ID, body)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusCreated, app, "Lawyer application submitted")
	})

	group.Get("/request/status", ensureUser, func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		app, err := lawyers.ApplicationStatus(c.UserContext(), account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, app, "Application status fetched")
	})

	group.Post("/search", ensureUser, func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		var body struct {
			Query string `json:"query"`
		}
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		groups, err := lawyers.Search(c.UserContext(), account.ID, body.Query)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"groups": groups}, "Lawyer groups generated")
	})

	group.Get("/:accountId", func(c *fiber.Ctx) error {
		id, err := idParam(c, "accountId")
		if err != nil {
			return fail(c, log, err)
		}
		profile, err := lawyers.Profile(c.UserContext(), id)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, profile, "Lawyer fetched")
	})

	group.Post("/:accountId/approve", ensureAdmin, func(c *fiber.Ctx) error {
		id, err := idParam(c, "accountId")
		if err != nil {
			return fail(c, log, err)
		}
		app, err := lawyers.Approve(c.UserContext(), id)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, app, "Lawyer approved")
	})
}
