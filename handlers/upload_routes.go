// handlers/upload_routes.go
package handlers

import (
	"briefly-server/apierr"
	"briefly-server/logger"
	"briefly-server/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupUploadRoutes(api fiber.Router, blobs utils.BlobStore, ensureUser fiber.Handler, maxUploadBytes int64, log *logger.Logger) {
	api.Post("/upload", ensureUser, func(c *fiber.Ctx) error {
		data, name, _, err := readFormFile(c, "file", maxUploadBytes)
		if err != nil {
			return fail(c, log, err)
		}
		if name == "" {
			name = "uploaded-file"
		}
		blob, err := blobs.Put(c.UserContext(), name, data)
		if err != nil {
			return fail(c, log, apierr.Internal("Upload failed", err))
		}
		return ok(c, fiber.StatusOK, blob, "File uploaded")
	})
}
