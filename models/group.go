package models

import "time"

// LawyerGroup is produced by the matching step. EscrowContractAddress is
// populated once, when the first paid document is added to the group.
type LawyerGroup struct {
	ID                    int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupName             string    `json:"groupName" gorm:"not null"`
	Reasoning             string    `json:"reasoning"`
	EscrowContractAddress *string   `json:"escrowContractAddress,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`

	Members []LawyerGroupMember `json:"-" gorm:"foreignKey:GroupID"`
}

// LawyerGroupMember is immutable after the group is created.
type LawyerGroupMember struct {
	ID             int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID        int64   `json:"groupId" gorm:"not null;uniqueIndex:idx_group_member"`
	LawyerAccount  int64   `json:"lawyerAccount" gorm:"not null;uniqueIndex:idx_group_member"`
	RelevanceScore float64 `json:"relevanceScore"`
	RoleInGroup    string  `json:"roleInGroup"`

	Lawyer LawyerAccount `json:"-" gorm:"foreignKey:LawyerAccount;references:Account"`
}
