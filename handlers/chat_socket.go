// handlers/chat_socket.go
package handlers

import (
	"briefly-server/logger"
	"briefly-server/middleware"
	"briefly-server/models"
	"briefly-server/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type clientFrame struct {
	Type string `json:"type"`
}

// SetupChatSocket serves /ws/group-chat. Clients receive live group events
// and may send {"type":"ping"}.
func SetupChatSocket(app *fiber.App, auth middleware.Authenticator, chat *services.ChatService, hub *services.ChatHub, log *logger.Logger) {
	app.Get("/ws/group-chat", middleware.WSAuth(auth, chat, log), websocket.New(func(conn *websocket.Conn) {
		account, _ := conn.Locals(middleware.AccountLocalsKey).(*models.Account)
		groupID, _ := conn.Locals(middleware.GroupIDLocalsKey).(int64)
		if account == nil || groupID == 0 {
			_ = conn.Close()
			return
		}

		id := hub.Register(groupID, account.ID, conn)
		defer func() {
			hub.Unregister(id)
			_ = conn.Close()
		}()

		if err := hub.Send(id, services.HubConnectionEstablished, fiber.Map{
			"connectionId": id,
			"userId":       account.ID,
			"groupId":      groupID,
		}); err != nil {
			return
		}

		for {
			var frame clientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("Chat connection closed", "connection", id, "error", err)
				}
				return
			}
			switch frame.Type {
			case "ping":
				if err := hub.Send(id, services.HubPong, nil); err != nil {
					return
				}
			default:
				if err := hub.Send(id, services.HubError, fiber.Map{"message": "unsupported message type"}); err != nil {
					return
				}
			}
		}
	}))
}
