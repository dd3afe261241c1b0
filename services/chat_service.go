package services

import (
	"context"
	"strings"

	"briefly-server/apierr"
	"briefly-server/models"

	"gorm.io/gorm"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxMessageLength    = 4000
)

type ChatService struct {
	DB       *gorm.DB
	Notifier Notifier
	Now      Clock
}

func NewChatService(db *gorm.DB, notifier Notifier) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ChatService{DB: db, Notifier: notifier}
}

// CanJoin checks that account may follow the group's chat.
func (s *ChatService) CanJoin(ctx context.Context, groupID, accountID int64) error {
	return ensureParticipant(ctx, s.DB, groupID, accountID)
}

func (s *ChatService) insert(ctx context.Context, msg *models.GroupMessage) error {
	msg.CreatedAt = s.Now.now()
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return apierr.Internal("failed to save message", err)
	}
	return nil
}

// PostMessage appends a text message from a participant and pushes it live.
func (s *ChatService) PostMessage(ctx context.Context, groupID, senderID int64, content string) (*models.GroupMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.Validation("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, apierr.Validation("message must be at most %d characters", maxMessageLength)
	}
	if err := ensureParticipant(ctx, s.DB, groupID, senderID); err != nil {
		return nil, err
	}

	msg := &models.GroupMessage{
		GroupID:        groupID,
		SenderAccount:  senderID,
		MessageType:    models.MessageTypeText,
		MessageContent: content,
	}
	if err := s.insert(ctx, msg); err != nil {
		return nil, err
	}
	s.Notifier.Broadcast(groupID, HubNewMessage, msg)
	return msg, nil
}

// PostSystemMessage records a server-generated notice.
func (s *ChatService) PostSystemMessage(ctx context.Context, groupID, senderID int64, content string) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{
		GroupID:        groupID,
		SenderAccount:  senderID,
		MessageType:    models.MessageTypeSystem,
		MessageContent: content,
	}
	if err := s.insert(ctx, msg); err != nil {
		return nil, err
	}
	s.Notifier.Broadcast(groupID, HubGroupMessageUpdate, msg)
	return msg, nil
}

// postDocumentMessage announces a new escrowed document in the chat.
func (s *ChatService) postDocumentMessage(ctx context.Context, doc *models.GroupDocument) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{
		GroupID:        doc.GroupID,
		SenderAccount:  doc.LawyerAccount,
		MessageType:    models.MessageTypeDocument,
		MessageContent: doc.Title,
		DocumentID:     &doc.ID,
	}
	if err := s.insert(ctx, msg); err != nil {
		return nil, err
	}
	s.Notifier.Broadcast(doc.GroupID, HubDocumentAdded, map[string]any{"message": msg, "document": doc})
	return msg, nil
}

// ListMessages returns the latest messages of a group in chronological order.
func (s *ChatService) ListMessages(ctx context.Context, groupID, accountID int64, limit int) ([]models.GroupMessage, error) {
	if err := ensureParticipant(ctx, s.DB, groupID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	var msgs []models.GroupMessage
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, apierr.Internal("failed to load messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
