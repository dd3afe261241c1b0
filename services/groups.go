package services

import (
	"context"
	"errors"
	"time"

	"briefly-server/apierr"
	"briefly-server/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GroupLawyer is a member as shown to clients.
type GroupLawyer struct {
	AccountID       int64           `json:"accountId"`
	Name            string          `json:"name"`
	PhotoURL        string          `json:"photoUrl"`
	Bio             string          `json:"bio"`
	Expertise       string          `json:"expertise"`
	ConsultationFee decimal.Decimal `json:"consultationFee"`
	RelevanceScore  float64         `json:"relevanceScore"`
	RoleInGroup     string          `json:"roleInGroup"`
}

type GroupView struct {
	ID                    int64         `json:"id"`
	GroupName             string        `json:"groupName"`
	Reasoning             string        `json:"reasoning"`
	EscrowContractAddress *string       `json:"escrowContractAddress,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	Lawyers               []GroupLawyer `json:"lawyers"`
}

func newGroupView(g *models.LawyerGroup) GroupView {
	view := GroupView{
		ID:                    g.ID,
		GroupName:             g.GroupName,
		Reasoning:             g.Reasoning,
		EscrowContractAddress: g.EscrowContractAddress,
		CreatedAt:             g.CreatedAt,
		Lawyers:               make([]GroupLawyer, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		view.Lawyers = append(view.Lawyers, GroupLawyer{
			AccountID:       m.LawyerAccount,
			Name:            m.Lawyer.Name,
			PhotoURL:        m.Lawyer.PhotoURL,
			Bio:             m.Lawyer.Bio,
			Expertise:       m.Lawyer.Expertise,
			ConsultationFee: m.Lawyer.ConsultationFee,
			RelevanceScore:  m.RelevanceScore,
			RoleInGroup:     m.RoleInGroup,
		})
	}
	return view
}

func loadGroup(ctx context.Context, db *gorm.DB, groupID int64) (*models.LawyerGroup, error) {
	var group models.LawyerGroup
	err := db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("relevance_score DESC, id ASC") }).
		Preload("Members.Lawyer").
		First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("group not found")
	}
	if err != nil {
		return nil, apierr.Internal("failed to load group", err)
	}
	return &group, nil
}

func isGroupMember(db *gorm.DB, groupID, accountID int64) (bool, error) {
	var n int64
	err := db.Model(&models.LawyerGroupMember{}).
		Where("group_id = ? AND lawyer_account = ?", groupID, accountID).
		Count(&n).Error
	return n > 0, err
}

// isParticipant reports whether accountID may see a group's chat and
// documents: its lawyer members plus requesters with an accepted request.
func isParticipant(db *gorm.DB, groupID, accountID int64) (bool, error) {
	member, err := isGroupMember(db, groupID, accountID)
	if err != nil || member {
		return member, err
	}
	var n int64
	err = db.Model(&models.GroupRequest{}).
		Where("group_id = ? AND requester_account = ? AND status = ?", groupID, accountID, models.RequestStatusAccepted).
		Count(&n).Error
	return n > 0, err
}

// ensureParticipant returns 404 for unknown groups and 403 for outsiders.
func ensureParticipant(ctx context.Context, db *gorm.DB, groupID, accountID int64) error {
	var n int64
	if err := db.WithContext(ctx).Model(&models.LawyerGroup{}).Where("id = ?", groupID).Count(&n).Error; err != nil {
		return apierr.Internal("failed to load group", err)
	}
	if n == 0 {
		return apierr.NotFound("group not found")
	}
	ok, err := isParticipant(db.WithContext(ctx), groupID, accountID)
	if err != nil {
		return apierr.Internal("failed to check group access", err)
	}
	if !ok {
		return apierr.Forbidden("not a participant of this group")
	}
	return nil
}

// verifiedLawyer loads accountID's lawyer record, 403 unless verified.
func verifiedLawyer(ctx context.Context, db *gorm.DB, accountID int64) (*models.LawyerAccount, error) {
	var lawyer models.LawyerAccount
	err := db.WithContext(ctx).Preload("Owner").Where("account = ?", accountID).First(&lawyer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Forbidden("only verified lawyers can do this")
	}
	if err != nil {
		return nil, apierr.Internal("failed to load lawyer", err)
	}
	if !lawyer.IsVerified() {
		return nil, apierr.Forbidden("only verified lawyers can do this")
	}
	return &lawyer, nil
}
