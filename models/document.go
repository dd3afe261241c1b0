package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DocumentStatusLocked   = "locked"
	DocumentStatusUnlocked = "unlocked"
)

// GroupDocument binds an encrypted artifact to an on-chain payment. Status
// only ever moves locked -> unlocked.
type GroupDocument struct {
	ID                 int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID            int64           `json:"groupId" gorm:"not null;index"`
	LawyerAccount      int64           `json:"lawyerAccount" gorm:"not null"`
	ContractDocumentID string          `json:"contractDocumentId" gorm:"not null"`
	Title              string          `json:"title" gorm:"not null"`
	Description        string          `json:"description"`
	FileName           string          `json:"fileName"`
	MimeType           string          `json:"mimeType"`
	DocumentHash       string          `json:"documentHash" gorm:"not null"`
	IPFSHash           string          `json:"ipfsHash" gorm:"column:ipfs_hash;not null"`
	EncryptionKey      string          `json:"-" gorm:"not null"`
	IV                 string          `json:"-" gorm:"column:iv;not null"`
	AuthTag            string          `json:"-" gorm:"not null"`
	PaymentRequired    decimal.Decimal `json:"paymentRequired" gorm:"type:numeric(20,6);not null"`
	Status             string          `json:"status" gorm:"not null;default:'locked'"`
	CreatedAt          time.Time       `json:"createdAt"`
	UnlockedAt         *time.Time      `json:"unlockedAt,omitempty"`
}

func (d *GroupDocument) IsUnlocked() bool {
	return d.Status == DocumentStatusUnlocked
}

// DocumentAccessLog records every successful download.
type DocumentAccessLog struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	DocumentID int64     `json:"documentId" gorm:"not null;index"`
	AccountID  int64     `json:"accountId" gorm:"not null"`
	AccessedAt time.Time `json:"accessedAt"`
}
