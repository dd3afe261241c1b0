// handlers/app.go
package handlers

import (
	"errors"
	"strings"

	"briefly-server/logger"
	"briefly-server/middleware"
	"briefly-server/services"
	"briefly-server/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type AppOptions struct {
	Log            *logger.Logger
	DB             *gorm.DB
	AllowedOrigins []string
	AdminSecret    string
	MaxUploadBytes int64

	Auth     *services.AuthService
	Lawyers  *services.LawyerService
	Requests *services.RequestService
	Escrow   *services.EscrowService
	Chat     *services.ChatService
	Hub      *services.ChatHub
	Blobs    utils.BlobStore
}

// NewApp builds the fiber app with every route mounted.
func NewApp(opts AppOptions) *fiber.App {
	log := opts.Log
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	app := fiber.New(fiber.Config{
		AppName: "briefly-server",
		// Oversized files are rejected by the handlers with a 400; leave room
		// for the multipart envelope.
		BodyLimit: int(opts.MaxUploadBytes)*2 + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("Unhandled error", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"success": false, "error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(log.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Admin-Secret",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	ensureUser := middleware.EnsureUser(opts.Auth, log)
	ensureAdmin := middleware.EnsureAdmin(opts.AdminSecret, log)

	SetupOpsRoutes(app, opts.DB)

	api := app.Group("/api/v1")
	SetupAuthRoutes(api, opts.Auth, log)
	SetupLawyerRoutes(api, opts.Lawyers, ensureUser, ensureAdmin, log)
	SetupGroupRoutes(api, GroupServices{
		Requests: opts.Requests,
		Escrow:   opts.Escrow,
		Chat:     opts.Chat,
	}, ensureUser, opts.MaxUploadBytes, log)
	SetupUploadRoutes(api, opts.Blobs, ensureUser, opts.MaxUploadBytes, log)

	SetupChatSocket(app, opts.Auth, opts.Chat, opts.Hub, log)

	return app
}
