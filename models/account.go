package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one row per wallet, created on the first authenticated request.
type Account struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	WalletAddress string    `json:"walletAddress" gorm:"uniqueIndex;not null"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (Account) TableName() string { return "account" }

// LawyerAccount extends an Account once a lawyer applies. VerifiedAt is set
// exactly once by an admin approval; rows are never deleted.
type LawyerAccount struct {
	Account         int64           `json:"accountId" gorm:"primaryKey;autoIncrement:false"`
	Name            string          `json:"name" gorm:"not null"`
	PhotoURL        string          `json:"photoUrl" gorm:"column:photo_url"`
	Bio             string          `json:"bio" gorm:"not null"`
	Expertise       string          `json:"expertise" gorm:"not null"`
	ConsultationFee decimal.Decimal `json:"consultationFee" gorm:"type:numeric(20,6);not null"`
	VerifiedAt      *time.Time      `json:"verifiedAt,omitempty"`
	NFTTokenID      *string         `json:"nftTokenId,omitempty" gorm:"column:nft_token_id"`
	CreatedAt       time.Time       `json:"createdAt"`

	Owner         Account              `json:"-" gorm:"foreignKey:Account;references:ID"`
	Jurisdictions []LawyerJurisdiction `json:"-" gorm:"foreignKey:Account;references:Account"`
	Labels        []LawyerLabel        `json:"-" gorm:"foreignKey:Account;references:Account"`
}

func (l *LawyerAccount) IsVerified() bool {
	return l != nil && l.VerifiedAt != nil
}

// JurisdictionNames flattens the preloaded jurisdictions.
func (l *LawyerAccount) JurisdictionNames() []string {
	out := make([]string, 0, len(l.Jurisdictions))
	for _, j := range l.Jurisdictions {
		out = append(out, j.Jurisdiction)
	}
	return out
}

// LabelNames flattens the preloaded labels.
func (l *LawyerAccount) LabelNames() []string {
	out := make([]string, 0, len(l.Labels))
	for _, lb := range l.Labels {
		out = append(out, lb.Label)
	}
	return out
}

type LawyerJurisdiction struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Account      int64  `json:"accountId" gorm:"not null;index"`
	Jurisdiction string `json:"jurisdiction" gorm:"not null"`
}

// LawyerLabel is a practice-area tag extracted at approval time.
type LawyerLabel struct {
	ID      int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Account int64  `json:"accountId" gorm:"not null;index"`
	Label   string `json:"label" gorm:"not null"`
}
