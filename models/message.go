package models

import "time"

const (
	MessageTypeText     = "text"
	MessageTypeDocument = "document"
	MessageTypeSystem   = "system"
)

// GroupMessage is the append-only group chat log.
type GroupMessage struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID        int64     `json:"groupId" gorm:"not null;index"`
	SenderAccount  int64     `json:"senderAccount" gorm:"not null"`
	MessageType    string    `json:"messageType" gorm:"not null"`
	MessageContent string    `json:"messageContent" gorm:"not null"`
	DocumentID     *int64    `json:"documentId,omitempty"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
}
