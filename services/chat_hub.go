package services

import (
	"sync"
	"time"

	"briefly-server/logger"
	"briefly-server/metrics"

	"github.com/google/uuid"
)

// Hub message types pushed to chat clients.
const (
	HubConnectionEstablished = "connection_established"
	HubNewMessage            = "new_message"
	HubDocumentAdded         = "document_added"
	HubGroupMessageUpdate    = "group_message_update"
	HubPong                  = "pong"
	HubError                 = "error"
)

// Sender is the write side of a client connection.
type Sender interface {
	WriteJSON(v interface{}) error
}

type HubMessage struct {
	Type      string    `json:"type"`
	GroupID   int64     `json:"groupId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type hubConn struct {
	groupID   int64
	accountID int64
	sender    Sender
	mu        sync.Mutex
}

func (c *hubConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender.WriteJSON(v)
}

// ChatHub is the in-memory registry of live group chat connections. A failed
// write drops the connection; there is no retry.
type ChatHub struct {
	mu    sync.RWMutex
	conns map[string]*hubConn
	log   *logger.Logger
}

func NewChatHub(log *logger.Logger) *ChatHub {
	return &ChatHub{conns: make(map[string]*hubConn), log: log}
}

// Register adds a connection and returns its id.
func (h *ChatHub) Register(groupID, accountID int64, s Sender) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = &hubConn{groupID: groupID, accountID: accountID, sender: s}
	h.mu.Unlock()
	metrics.ChatConnections.Inc()
	h.log.Debug("Chat connection registered", "connection", id, "group", groupID, "account", accountID)
	return id
}

func (h *ChatHub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		metrics.ChatConnections.Dec()
	}
}

// Send writes one message to a single connection.
func (h *ChatHub) Send(id string, msgType string, data any) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	err := c.write(HubMessage{Type: msgType, GroupID: c.groupID, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.Unregister(id)
	}
	return err
}

// Broadcast fans a message out to every connection of the group.
func (h *ChatHub) Broadcast(groupID int64, msgType string, data any) {
	h.mu.RLock()
	targets := make(map[string]*hubConn)
	for id, c := range h.conns {
		if c.groupID == groupID {
			targets[id] = c
		}
	}
	h.mu.RUnlock()

	msg := HubMessage{Type: msgType, GroupID: groupID, Data: data, Timestamp: time.Now().UTC()}
	for id, c := range targets {
		if err := c.write(msg); err != nil {
			h.log.Warn("Dropping chat connection after failed send", "connection", id, "group", groupID, "error", err)
			h.Unregister(id)
		}
	}
}

// GroupConnections counts live connections for a group.
func (h *ChatHub) GroupConnections(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.conns {
		if c.groupID == groupID {
			n++
		}
	}
	return n
}
