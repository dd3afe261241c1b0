package models

import "time"

const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
	RequestStatusExpired  = "expired"
)

const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

// GroupRequest is a client's request to a lawyer group. At most one pending
// request exists per (requester, group).
type GroupRequest struct {
	ID               int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	RequesterAccount int64      `json:"requesterAccount" gorm:"not null;index"`
	GroupID          int64      `json:"groupId" gorm:"not null;index"`
	CurrentSituation string     `json:"currentSituation" gorm:"not null"`
	FuturePlans      string     `json:"futurePlans" gorm:"not null"`
	Status           string     `json:"status" gorm:"not null;default:'pending';index"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt" gorm:"not null;index"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`

	Group     LawyerGroup            `json:"-" gorm:"foreignKey:GroupID"`
	Requester Account                `json:"-" gorm:"foreignKey:RequesterAccount"`
	Responses []GroupRequestResponse `json:"-" gorm:"foreignKey:RequestID"`
}

func (r *GroupRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

func (r *GroupRequest) IsTerminal() bool {
	return r.Status != RequestStatusPending
}

// GroupRequestResponse is append-only; one per (request, lawyer).
type GroupRequestResponse struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestID     int64     `json:"requestId" gorm:"not null;uniqueIndex:idx_request_lawyer"`
	LawyerAccount int64     `json:"lawyerAccount" gorm:"not null;uniqueIndex:idx_request_lawyer"`
	Response      string    `json:"response" gorm:"not null"`
	RespondedAt   time.Time `json:"respondedAt"`
}
