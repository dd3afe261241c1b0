// middleware/ws_auth.go
package middleware

import (
	"context"
	"strconv"
	"strings"

	"briefly-server/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const GroupIDLocalsKey = "groupId"

// GroupAccess decides whether an account may join a group's live chat.
type GroupAccess interface {
	CanJoin(ctx context.Context, groupID, accountID int64) error
}

// WSAuth validates the `groupId`, `userId` and `token` query parameters of a
// chat upgrade request. The token must belong to userId, and userId must be
// a participant of the group.
func WSAuth(auth Authenticator, access GroupAccess, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := strings.TrimSpace(c.Query("token"))
		groupID, gerr := strconv.ParseInt(c.Query("groupId"), 10, 64)
		userID, uerr := strconv.ParseInt(c.Query("userId"), 10, 64)
		if token == "" || gerr != nil || uerr != nil {
			log.Debug("[WSAuth] Missing query params", "ip", c.IP())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Missing groupId, userId or token in query",
			})
		}

		account, err := auth.Authenticate(c.UserContext(), token)
		if err != nil || account.ID != userID {
			log.Debug("[WSAuth] Token rejected", "user", userID, "group", groupID)
			return unauthorized(c, "Unauthorized")
		}
		if err := access.CanJoin(c.UserContext(), groupID, account.ID); err != nil {
			log.Debug("[WSAuth] Not a participant", "user", userID, "group", groupID, "error", err)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Not a participant of this group",
			})
		}

		c.Locals(AccountLocalsKey, account)
		c.Locals(GroupIDLocalsKey, groupID)
		return c.Next()
	}
}
