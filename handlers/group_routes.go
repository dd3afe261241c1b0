// handlers/group_routes.go
package handlers

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"briefly-server/apierr"
	"briefly-server/logger"
	"briefly-server/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type GroupServices struct {
	Requests *services.RequestService
	Escrow   *services.EscrowService
	Chat     *services.ChatService
}

func SetupGroupRoutes(api fiber.Router, svc GroupServices, ensureUser fiber.Handler, maxUploadBytes int64, log *logger.Logger) {
	group := api.Group("/groups", ensureUser)

	// Static paths first so they never bind to :groupId.
	group.Post("/request", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		var body services.CreateRequestInput
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		req, err := svc.Requests.CreateRequest(c.UserContext(), account.ID, body)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusCreated, req, "Request sent to group")
	})

	group.Get("/requests/sent", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		reqs, err := svc.Requests.ListSent(c.UserContext(), account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, reqs, "Sent requests fetched")
	})

	group.Get("/requests/pending", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		reqs, err := svc.Requests.ListPending(c.UserContext(), account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, reqs, "Pending requests fetched")
	})

	group.Post("/requests/:requestId/respond", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		requestID, err := idParam(c, "requestId")
		if err != nil {
			return fail(c, log, err)
		}
		var body struct {
			Response string `json:"response"`
		}
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		res, err := svc.Requests.Respond(c.UserContext(), account.ID, requestID, body.Response)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, res, "Response recorded")
	})

	group.Get("/:groupId", func(c *fiber.Ctx) error {
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		g, err := svc.Requests.GetGroup(c.UserContext(), groupID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, g, "Group fetched")
	})

	group.Get("/:groupId/documents", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		docs, err := svc.Escrow.ListDocuments(c.UserContext(), groupID, account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, docs, "Documents fetched")
	})

	group.Post("/:groupId/documents", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		in, err := documentInput(c, maxUploadBytes)
		if err != nil {
			return fail(c, log, err)
		}
		doc, err := svc.Escrow.AddDocument(c.UserContext(), groupID, account.ID, in)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusCreated, doc, "Document added")
	})

	group.Post("/:groupId/documents/:documentId/pay", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		documentID, err := idParam(c, "documentId")
		if err != nil {
			return fail(c, log, err)
		}
		doc, err := svc.Escrow.Pay(c.UserContext(), groupID, documentID, account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, doc, "Payment confirmed")
	})

	group.Get("/:groupId/documents/:documentId/download", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		documentID, err := idParam(c, "documentId")
		if err != nil {
			return fail(c, log, err)
		}
		dl, err := svc.Escrow.Download(c.UserContext(), groupID, documentID, account.ID)
		if err != nil {
			return fail(c, log, err)
		}
		c.Set(fiber.HeaderContentType, dl.MimeType)
		c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName}))
		return c.Status(fiber.StatusOK).Send(dl.Data)
	})

	group.Get("/:groupId/messages", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		msgs, err := svc.Chat.ListMessages(c.UserContext(), groupID, account.ID, c.QueryInt("limit"))
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusOK, msgs, "Messages fetched")
	})

	group.Post("/:groupId/messages", func(c *fiber.Ctx) error {
		account, err := currentAccount(c)
		if err != nil {
			return fail(c, log, err)
		}
		groupID, err := idParam(c, "groupId")
		if err != nil {
			return fail(c, log, err)
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := bindJSON(c, &body); err != nil {
			return fail(c, log, err)
		}
		msg, err := svc.Chat.PostMessage(c.UserContext(), groupID, account.ID, body.Content)
		if err != nil {
			return fail(c, log, err)
		}
		return ok(c, fiber.StatusCreated, msg, "Message sent")
	})
}

func documentInput(c *fiber.Ctx, maxUploadBytes int64) (services.AddDocumentInput, error) {
	var in services.AddDocumentInput

	price, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("price")))
	if err != nil {
		return in, apierr.Validation("price must be a number")
	}
	data, name, mimeType, err := readFormFile(c, "file", maxUploadBytes)
	if err != nil {
		return in, err
	}

	in.Title = c.FormValue("title")
	in.Description = c.FormValue("description")
	in.FileName = name
	in.MimeType = mimeType
	in.Data = data
	in.Price = price
	return in, nil
}

// readFormFile loads a multipart file into memory, rejecting anything over
// maxBytes.
func readFormFile(c *fiber.Ctx, field string, maxBytes int64) ([]byte, string, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", "", apierr.Validation("No file provided")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, "", "", apierr.Validation("File too large (max %s)", humanBytes(maxBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", "", apierr.Internal("failed to read upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", apierr.Internal("failed to read upload", err)
	}
	return data, fh.Filename, fh.Header.Get(fiber.HeaderContentType), nil
}

func humanBytes(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
