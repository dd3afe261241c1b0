package services

import (
	"context"
	"errors"
	"strings"

	"briefly-server/apierr"
	"briefly-server/chain"
	"briefly-server/logger"
	"briefly-server/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	minBioLength   = 10
	minQueryLength = 10
)

type ApplicationInput struct {
	Name            string          `json:"name"`
	PhotoURL        string          `json:"photoUrl"`
	Bio             string          `json:"bio"`
	Expertise       string          `json:"expertise"`
	Jurisdictions   []string        `json:"jurisdictions"`
	ConsultationFee decimal.Decimal `json:"consultationFee"`
}

func (in *ApplicationInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	in.Bio = strings.TrimSpace(in.Bio)
	in.Expertise = strings.TrimSpace(in.Expertise)

	var jurisdictions []string
	for _, j := range in.Jurisdictions {
		if j = strings.TrimSpace(j); j != "" {
			jurisdictions = append(jurisdictions, j)
		}
	}
	in.Jurisdictions = jurisdictions

	switch {
	case in.Name == "":
		return apierr.Validation("name is required")
	case len(in.Bio) < minBioLength:
		return apierr.Validation("bio must be at least %d characters", minBioLength)
	case in.Expertise == "":
		return apierr.Validation("expertise is required")
	case len(in.Jurisdictions) == 0:
		return apierr.Validation("at least one jurisdiction is required")
	case in.ConsultationFee.IsNegative():
		return apierr.Validation("consultationFee must not be negative")
	}
	return nil
}

// Application is a lawyer record with its flattened relations.
type Application struct {
	models.LawyerAccount
	WalletAddress string   `json:"walletAddress"`
	Jurisdictions []string `json:"jurisdictions"`
	Labels        []string `json:"labels"`
	Verified      bool     `json:"verified"`
}

func newApplication(l *models.LawyerAccount) Application {
	return Application{
		LawyerAccount: *l,
		WalletAddress: l.Owner.WalletAddress,
		Jurisdictions: l.JurisdictionNames(),
		Labels:        l.LabelNames(),
		Verified:      l.IsVerified(),
	}
}

type LawyerService struct {
	DB      *gorm.DB
	Chain   Chain
	Matcher GroupMatcher
	Labels  LabelExtractor
	Log     *logger.Logger
	Now     Clock

	approvals keyedLocks
}

func NewLawyerService(db *gorm.DB, ch Chain, matcher GroupMatcher, labels LabelExtractor, log *logger.Logger) *LawyerService {
	return &LawyerService{DB: db, Chain: ch, Matcher: matcher, Labels: labels, Log: log}
}

func (s *LawyerService) load(ctx context.Context, accountID int64) (*models.LawyerAccount, error) {
	var lawyer models.LawyerAccount
	err := s.DB.WithContext(ctx).
		Preload("Owner").
		Preload("Jurisdictions").
		Preload("Labels").
		Where("account = ?", accountID).
		First(&lawyer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("lawyer application not found")
	}
	if err != nil {
		return nil, apierr.Internal("failed to load lawyer", err)
	}
	return &lawyer, nil
}

// SubmitApplication creates the lawyer record and its jurisdictions.
func (s *LawyerService) SubmitApplication(ctx context.Context, accountID int64, in ApplicationInput) (*Application, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := s.Now.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.LawyerAccount{}).Where("account = ?", accountID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.Conflict("a lawyer application already exists for this account")
		}

		lawyer := models.LawyerAccount{
			Account:         accountID,
			Name:            in.Name,
			PhotoURL:        in.PhotoURL,
			Bio:             in.Bio,
			Expertise:       in.Expertise,
			ConsultationFee: in.ConsultationFee,
			CreatedAt:       now,
		}
		if err := tx.Omit("Owner", "Jurisdictions", "Labels").Create(&lawyer).Error; err != nil {
			return err
		}
		for _, j := range in.Jurisdictions {
			if err := tx.Create(&models.LawyerJurisdiction{Account: accountID, Jurisdiction: j}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindInternal {
			return nil, err
		}
		return nil, apierr.Internal("failed to submit application", err)
	}

	lawyer, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	app := newApplication(lawyer)
	return &app, nil
}

func (s *LawyerService) ApplicationStatus(ctx context.Context, accountID int64) (*Application, error) {
	lawyer, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	app := newApplication(lawyer)
	return &app, nil
}

// Approve verifies a lawyer exactly once, minting the identity NFT to their
// wallet, then tags them with practice labels. Label failures are logged only.
func (s *LawyerService) Approve(ctx context.Context, accountID int64) (*Application, error) {
	lawyer, err := s.verify(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.tagLawyer(ctx, lawyer)

	lawyer, err = s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	app := newApplication(lawyer)
	return &app, nil
}

// verify mints the identity NFT and marks the lawyer verified. Approvals
// of one account are serialized so a lost race never mints twice.
func (s *LawyerService) verify(ctx context.Context, accountID int64) (*models.LawyerAccount, error) {
	lock := s.approvals.get(accountID)
	lock.Lock()
	defer lock.Unlock()

	lawyer, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if lawyer.IsVerified() {
		return nil, apierr.Conflict("lawyer is already verified")
	}

	var tokenID *string
	id, err := s.Chain.MintLawyerIdentity(ctx, lawyer.Owner.WalletAddress)
	switch {
	case errors.Is(err, chain.ErrDisabled):
		s.Log.Warn("Identity NFT not minted, chain disabled", "account", accountID)
	case err != nil:
		return nil, apierr.Internal("failed to mint lawyer identity", err)
	default:
		tokenID = &id
	}

	res := s.DB.WithContext(ctx).Model(&models.LawyerAccount{}).
		Where("account = ? AND verified_at IS NULL", accountID).
		Updates(map[string]interface{}{"verified_at": s.Now.now(), "nft_token_id": tokenID})
	if res.Error != nil {
		return nil, apierr.Internal("failed to approve lawyer", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apierr.Conflict("lawyer is already verified")
	}
	s.Log.Info("Lawyer verified", "account", accountID, "nftTokenId", id)
	return lawyer, nil
}

func (s *LawyerService) tagLawyer(ctx context.Context, lawyer *models.LawyerAccount) {
	if s.Labels == nil {
		return
	}
	labels, err := s.Labels.ExtractLabels(ctx, LawyerProfile{
		Name:            lawyer.Name,
		Bio:             lawyer.Bio,
		Expertise:       lawyer.Expertise,
		Jurisdictions:   lawyer.JurisdictionNames(),
		ConsultationFee: lawyer.ConsultationFee.String(),
	})
	if err != nil {
		s.Log.Warn("Label extraction failed", "account", lawyer.Account, "error", err)
		return
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account = ?", lawyer.Account).Delete(&models.LawyerLabel{}).Error; err != nil {
			return err
		}
		for _, l := range labels {
			if err := tx.Create(&models.LawyerLabel{Account: lawyer.Account, Label: l}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.Log.Warn("Failed to store labels", "account", lawyer.Account, "error", err)
	}
}

func (s *LawyerService) verifiedLawyers(ctx context.Context) ([]models.LawyerAccount, error) {
	var lawyers []models.LawyerAccount
	err := s.DB.WithContext(ctx).
		Preload("Owner").
		Preload("Jurisdictions").
		Preload("Labels").
		Where("verified_at IS NOT NULL").
		Order("verified_at ASC, account ASC").
		Find(&lawyers).Error
	return lawyers, err
}

func (s *LawyerService) ListVerified(ctx context.Context) ([]Application, error) {
	lawyers, err := s.verifiedLawyers(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to list lawyers", err)
	}
	out := make([]Application, 0, len(lawyers))
	for i := range lawyers {
		out = append(out, newApplication(&lawyers[i]))
	}
	return out, nil
}

// Profile returns a verified lawyer's public record.
func (s *LawyerService) Profile(ctx context.Context, accountID int64) (*Application, error) {
	lawyer, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !lawyer.IsVerified() {
		return nil, apierr.NotFound("lawyer not found")
	}
	app := newApplication(lawyer)
	return &app, nil
}

// Search asks the matcher to group verified lawyers around the client's need
// and persists every returned group.
func (s *LawyerService) Search(ctx context.Context, accountID int64, query string) ([]GroupView, error) {
	query = strings.TrimSpace(query)
	if len(query) < minQueryLength {
		return nil, apierr.Validation("query must be at least %d characters", minQueryLength)
	}

	lawyers, err := s.verifiedLawyers(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to load lawyers", err)
	}
	if len(lawyers) == 0 {
		return []GroupView{}, nil
	}

	roster := make([]RosterEntry, 0, len(lawyers))
	for i := range lawyers {
		l := &lawyers[i]
		roster = append(roster, RosterEntry{
			AccountID:       l.Account,
			Name:            l.Name,
			Bio:             l.Bio,
			Expertise:       l.Expertise,
			Jurisdictions:   l.JurisdictionNames(),
			Labels:          l.LabelNames(),
			ConsultationFee: l.ConsultationFee.String(),
		})
	}

	groupings, err := s.Matcher.MatchGroups(ctx, query, roster)
	if err != nil {
		return nil, apierr.Internal("failed to match lawyers", err)
	}

	ids, err := s.persistGroupings(ctx, groupings)
	if err != nil {
		return nil, apierr.Internal("failed to save groups", err)
	}
	s.Log.Info("Lawyer search produced groups", "account", accountID, "groups", len(ids))

	out := make([]GroupView, 0, len(ids))
	for _, id := range ids {
		g, err := loadGroup(ctx, s.DB, id)
		if err != nil {
			return nil, err
		}
		out = append(out, newGroupView(g))
	}
	return out, nil
}

// persistGroupings writes groups and members in one transaction. Members
// that do not reference a lawyer record, or repeat within a group, are
// skipped; groups left empty are not stored.
func (s *LawyerService) persistGroupings(ctx context.Context, groupings []Grouping) ([]int64, error) {
	var ids []int64
	now := s.Now.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range groupings {
			var members []models.LawyerGroupMember
			seen := make(map[int64]bool)
			for _, l := range g.Lawyers {
				if seen[l.AccountID] {
					continue
				}
				var n int64
				if err := tx.Model(&models.LawyerAccount{}).
					Where("account = ? AND verified_at IS NOT NULL", l.AccountID).
					Count(&n).Error; err != nil {
					return err
				}
				if n == 0 {
					s.Log.Warn("Matcher returned unknown or unverified lawyer", "account", l.AccountID, "group", g.GroupName)
					continue
				}
				seen[l.AccountID] = true
				members = append(members, models.LawyerGroupMember{
					LawyerAccount:  l.AccountID,
					RelevanceScore: l.RelevanceScore,
					RoleInGroup:    strings.TrimSpace(l.RoleInGroup),
				})
			}
			if len(members) == 0 {
				continue
			}

			group := models.LawyerGroup{
				GroupName: strings.TrimSpace(g.GroupName),
				Reasoning: strings.TrimSpace(g.Reasoning),
				CreatedAt: now,
			}
			if err := tx.Omit("Members").Create(&group).Error; err != nil {
				return err
			}
			for i := range members {
				members[i].GroupID = group.ID
			}
			if err := tx.Omit("Lawyer").Create(&members).Error; err != nil {
				return err
			}
			ids = append(ids, group.ID)
		}
		return nil
	})
	return ids, err
}
